// Package session はリアルタイム面接セッションのライフサイクルを管理する。
// セッションは面接IDごとに高々1つで、ピア接続とクライアントチャネルを1つずつ所有する。
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewer/internal/model"
)

// State はネゴシエーションの状態を表す。
type State int

const (
	StateNew State = iota
	StateOfferReceived
	StateAnswerSent
	StateNegotiated
	StateClosed
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferReceived:
		return "offer_received"
	case StateAnswerSent:
		return "answer_sent"
	case StateNegotiated:
		return "negotiated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// セッション終了理由
const (
	CloseReasonClientGone = "client_disconnect"
	CloseReasonReplaced   = "replaced"
	CloseReasonRemoved    = "removed"
	CloseReasonPeerFailed = "peer_failed"
	CloseReasonShutdown   = "shutdown"
)

// ErrSessionClosed はセッション終了時にContextのcauseとして設定される。
var ErrSessionClosed = errors.New("session closed")

// Channel はクライアントへの送信路。
type Channel interface {
	Send(v any) error
	Close()
}

// Session は1つの面接に対するリアルタイム接続の状態。
// 生成と破棄はRegistryだけが行う。
type Session struct {
	ID          string
	InterviewID string

	channel Channel

	mu         sync.Mutex
	state      State
	peer       PeerConnection
	generation int

	// slot は容量1のセマフォで、ネゴシエーションとターンを直列化する。
	slot chan struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc

	closeOnce   sync.Once
	releaseOnce sync.Once
	closeReason string
	onClose     func(s *Session, reason string)
}

func newSession(interviewID string, ch Channel, onClose func(*Session, string)) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		ID:          uuid.NewString(),
		InterviewID: interviewID,
		channel:     ch,
		state:       StateNew,
		slot:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		onClose:     onClose,
	}
}

// State は現在の状態を返す。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Context はセッション終了時にキャンセルされるContextを返す。
func (s *Session) Context() context.Context {
	return s.ctx
}

// IsClosed はセッションが終了済みかを返す。
func (s *Session) IsClosed() bool {
	return s.ctx.Err() != nil
}

// CloseReason は終了理由を返す。終了していなければ空文字。
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// Send はクライアントへメッセージを送る。終了済みのセッションでは送らない。
func (s *Session) Send(v any) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	return s.channel.Send(v)
}

// Close はセッションを終了する。ピア接続とチャネルを閉じ、待機中の操作をキャンセルする。
// 2回目以降の呼び出しは何もしない。
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.closeReason = reason
		peer := s.peer
		s.peer = nil
		s.mu.Unlock()

		s.cancel(ErrSessionClosed)
		if peer != nil {
			_ = peer.Close()
		}
		s.channel.Close()
		if s.onClose != nil {
			s.onClose(s, reason)
		}
	})
}

// acquire は操作スロットを確保する。
// リクエストのキャンセルまたはセッション終了で待機を打ち切る。
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return model.NewSessionClosedError(s.InterviewID)
	}
	if s.IsClosed() {
		<-s.slot
		return model.NewSessionClosedError(s.InterviewID)
	}
	return nil
}

func (s *Session) release() {
	<-s.slot
}

// transition は現在の状態がfromのいずれかであればtoへ遷移する。
// 終了済みのセッションは遷移しない。
func (s *Session) transition(to State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	for _, f := range from {
		if s.state == f {
			s.state = to
			return true
		}
	}
	return false
}

// replacePeer は新しいピア接続を登録し、以前の接続を返す。世代番号で古い接続のコールバックを無視する。
func (s *Session) replacePeer(p PeerConnection, gen int) (PeerConnection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || gen != s.generation {
		return nil, false
	}
	old := s.peer
	s.peer = p
	return old, true
}

func (s *Session) nextGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Session) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Lease はターン処理中に保持する操作スロット。
type Lease struct {
	ctx     context.Context
	cancel  context.CancelFunc
	session *Session
	once    sync.Once
}

// Context はリクエストとセッションのどちらかが終わるとキャンセルされるContextを返す。
func (l *Lease) Context() context.Context {
	return l.ctx
}

// Closed はスロット確保後にセッションが終了したかを返す。
func (l *Lease) Closed() bool {
	return l.session != nil && l.session.IsClosed()
}

// Release はスロットを解放する。複数回呼んでもよい。
func (l *Lease) Release() {
	l.once.Do(func() {
		l.cancel()
		if l.session != nil {
			l.session.release()
		}
	})
}
