package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/model"
)

// 競合ポリシー
const (
	PolicyReplace = "replace"
	PolicyReject  = "reject"
)

// ErrRegistryClosed はシャットダウン開始後にセッションを作成しようとした場合のエラー。
var ErrRegistryClosed = errors.New("session registry is shutting down")

const eventPublishTimeout = 5 * time.Second

// Registry は面接IDごとのセッションを管理する。
// 同一IDの操作はキー単位のロックで直列化し、異なるIDの操作は並行に進める。
type Registry struct {
	policy    string
	metrics   metrics.MetricsCollector
	publisher events.Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*keyLock
	closing  bool

	// handlers はCreateからReleaseまでのハンドラ数。シャットダウン時に待機する。
	handlers sync.WaitGroup
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry はRegistryを生成する。policyが不明な値の場合はreplaceとして扱う。
func NewRegistry(policy string, mc metrics.MetricsCollector, publisher events.Publisher, logger *slog.Logger) *Registry {
	if policy != PolicyReject {
		policy = PolicyReplace
	}
	return &Registry{
		policy:    policy,
		metrics:   mc,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[string]*Session),
		locks:     make(map[string]*keyLock),
	}
}

// lockKey は面接IDのロックを取得し、解放関数を返す。
// 参照がなくなったロックはテーブルから削除する。
func (r *Registry) lockKey(interviewID string) func() {
	r.mu.Lock()
	l, ok := r.locks[interviewID]
	if !ok {
		l = &keyLock{}
		r.locks[interviewID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, interviewID)
		}
		r.mu.Unlock()
	}
}

// Create は面接のセッションを作成して登録する。
// 接続中のセッションがある場合、replaceポリシーでは古いセッションを閉じて置き換え、
// rejectポリシーではSESSION_ALREADY_ACTIVEを返す。
// 呼び出し側はハンドラ終了時に必ずReleaseを呼ぶこと。
// キーのロック中は登録の差し替えだけを行い、古いセッションの終了とイベント発行はロック解放後に行う。
func (r *Registry) Create(ctx context.Context, interviewID string, ch Channel) (*Session, error) {
	s, old, err := r.swap(interviewID, ch)
	if err != nil {
		return nil, err
	}

	if old != nil {
		r.logger.Info("既存のセッションを置き換えます",
			slog.String("interview_id", interviewID),
			slog.String("old_session_id", old.ID),
			slog.String("session_id", s.ID),
		)
		old.Close(CloseReasonReplaced)
	}

	r.metrics.SessionOpened()
	events.PublishBestEffort(ctx, r.publisher, r.logger, events.Event{
		Type:        events.TypeSessionOpened,
		InterviewID: interviewID,
		Attributes:  map[string]string{"session_id": s.ID},
	})
	return s, nil
}

// swap は新しいセッションを登録し、置き換えた接続中のセッションを返す。
func (r *Registry) swap(interviewID string, ch Channel) (*Session, *Session, error) {
	unlock := r.lockKey(interviewID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, nil, ErrRegistryClosed
	}
	old := r.sessions[interviewID]
	if old != nil && old.IsClosed() {
		old = nil
	}
	if old != nil && r.policy == PolicyReject {
		return nil, nil, model.NewSessionAlreadyActiveError(interviewID)
	}
	s := newSession(interviewID, ch, r.onSessionClosed)
	r.sessions[interviewID] = s
	r.handlers.Add(1)
	return s, old, nil
}

// Get は接続中のセッションを返す。
func (r *Registry) Get(interviewID string) (*Session, bool) {
	unlock := r.lockKey(interviewID)
	defer unlock()

	r.mu.Lock()
	s, ok := r.sessions[interviewID]
	r.mu.Unlock()
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// Remove は面接のセッションを閉じて登録を解除する。存在しない場合は何もしない。
func (r *Registry) Remove(interviewID string) {
	unlock := r.lockKey(interviewID)
	r.mu.Lock()
	s, ok := r.sessions[interviewID]
	if ok {
		delete(r.sessions, interviewID)
	}
	r.mu.Unlock()
	unlock()

	if ok {
		s.Close(CloseReasonRemoved)
	}
}

// Release はハンドラ終了時に呼び出す。sが現在登録されているインスタンスの場合だけ登録を解除する。
// 置き換え済みのセッションのReleaseが後継のセッションを消すことはない。
func (r *Registry) Release(s *Session) {
	unlock := r.lockKey(s.InterviewID)
	r.mu.Lock()
	if r.sessions[s.InterviewID] == s {
		delete(r.sessions, s.InterviewID)
	}
	r.mu.Unlock()
	unlock()

	s.Close(CloseReasonClientGone)
	s.releaseOnce.Do(r.handlers.Done)
}

// Count は接続中のセッション数を返す。Release前の終了済みセッションは数えない。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if !s.IsClosed() {
			n++
		}
	}
	return n
}

// AcquireTurn は面接に接続中のセッションがあれば操作スロットを確保する。
// セッションがなければリクエストのContextだけを持つLeaseを返す。
func (r *Registry) AcquireTurn(ctx context.Context, interviewID string) (*Lease, error) {
	s, ok := r.Get(interviewID)
	if !ok {
		lctx, cancel := context.WithCancel(ctx)
		return &Lease{ctx: lctx, cancel: cancel}, nil
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return &Lease{
		ctx: lctx,
		cancel: func() {
			stop()
			cancel()
		},
		session: s,
	}, nil
}

// Shutdown は新規作成を止め、全セッションを閉じてハンドラの終了を待つ。
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Close(CloseReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.handlers.Wait()
	}()

	select {
	case <-done:
		r.logger.Info("全セッションを終了しました", slog.Int("sessions", len(live)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) onSessionClosed(s *Session, reason string) {
	r.metrics.SessionClosed(reason)
	r.logger.Info("セッションを終了しました",
		slog.String("interview_id", s.InterviewID),
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
	)

	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()
	events.PublishBestEffort(ctx, r.publisher, r.logger, events.Event{
		Type:        events.TypeSessionClosed,
		InterviewID: s.InterviewID,
		Attributes:  map[string]string{"session_id": s.ID, "reason": reason},
	})
}
