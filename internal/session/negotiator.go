package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/model"
)

// SDP種別
const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

// Negotiator はクライアントのオファーに対するアンサーを生成する。
// 1つのオファーに対して生成するアンサーは1つで、失敗しても再試行しない。
type Negotiator struct {
	registry *Registry
	peers    PeerFactory
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	timeout  time.Duration
}

// NewNegotiator はNegotiatorを生成する。
func NewNegotiator(registry *Registry, peers PeerFactory, mc metrics.MetricsCollector, logger *slog.Logger, timeout time.Duration) *Negotiator {
	return &Negotiator{
		registry: registry,
		peers:    peers,
		metrics:  mc,
		logger:   logger,
		timeout:  timeout,
	}
}

// HandleOffer は面接に接続中のセッションでオファーを処理する。
func (n *Negotiator) HandleOffer(ctx context.Context, interviewID, remoteSDP, sdpType string) (*Description, error) {
	s, ok := n.registry.Get(interviewID)
	if !ok {
		return nil, model.NewSessionNotFoundError(interviewID)
	}
	return n.Negotiate(ctx, s, remoteSDP, sdpType)
}

// Negotiate はセッションの操作スロットを確保してオファーを適用し、アンサーを返す。
// NewとOfferReceived以外の状態では再ネゴシエーションとしてINVALID_SESSION_STATEを返す。
// 失敗時もセッションは閉じないため、クライアントはオファーを再送できる。
// 処理中にセッションが閉じられた場合は結果を破棄し、状態を変更しない。
func (n *Negotiator) Negotiate(ctx context.Context, s *Session, remoteSDP, sdpType string) (*Description, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	switch st := s.State(); st {
	case StateNew, StateOfferReceived:
	case StateClosed:
		return nil, model.NewSessionClosedError(s.InterviewID)
	default:
		return nil, model.NewInvalidSessionStateError(st.String())
	}

	if sdpType != SDPTypeOffer {
		n.metrics.RecordNegotiation(metrics.ResultFailure)
		return nil, model.NewNegotiationFailedError("typeはofferである必要があります")
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(remoteSDP)); err != nil {
		n.metrics.RecordNegotiation(metrics.ResultFailure)
		return nil, model.NewNegotiationFailedError("SDPを解析できません")
	}

	if !s.transition(StateOfferReceived, StateNew, StateOfferReceived) {
		return nil, model.NewSessionClosedError(s.InterviewID)
	}

	opCtx, cancel := context.WithTimeout(s.ctx, n.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	gen := s.nextGeneration()
	peer, err := n.peers.New(func(ps PeerState) { n.onPeerState(s, gen, ps) })
	if err != nil {
		return nil, n.fail(s, err)
	}
	old, ok := s.replacePeer(peer, gen)
	if !ok {
		_ = peer.Close()
		return nil, model.NewSessionClosedError(s.InterviewID)
	}
	if old != nil {
		_ = old.Close()
	}

	answer, err := peer.Answer(opCtx, Description{Type: sdpType, SDP: remoteSDP})
	if s.IsClosed() {
		n.logger.Info("セッション終了のためネゴシエーション結果を破棄しました",
			slog.String("interview_id", s.InterviewID),
			slog.String("session_id", s.ID),
		)
		return nil, model.NewSessionClosedError(s.InterviewID)
	}
	if err != nil {
		return nil, n.fail(s, err)
	}
	if answer.SDP == "" {
		return nil, n.fail(s, errEmptyAnswer)
	}

	if !s.transition(StateAnswerSent, StateOfferReceived) {
		return nil, model.NewSessionClosedError(s.InterviewID)
	}
	n.metrics.RecordNegotiation(metrics.ResultSuccess)
	n.logger.Info("アンサーを生成しました",
		slog.String("interview_id", s.InterviewID),
		slog.String("session_id", s.ID),
	)
	return &answer, nil
}

func (n *Negotiator) fail(s *Session, err error) error {
	n.metrics.RecordNegotiation(metrics.ResultFailure)
	n.logger.Warn("ネゴシエーションに失敗しました",
		slog.String("interview_id", s.InterviewID),
		slog.String("session_id", s.ID),
		slog.String("error", err.Error()),
	)
	return model.NewNegotiationFailedError("メディア接続を確立できません")
}

func (n *Negotiator) onPeerState(s *Session, gen int, ps PeerState) {
	if s.currentGeneration() != gen {
		return
	}
	switch ps {
	case PeerConnected:
		if s.transition(StateNegotiated, StateAnswerSent) {
			n.logger.Info("ピア接続が確立しました",
				slog.String("interview_id", s.InterviewID),
				slog.String("session_id", s.ID),
			)
		}
	case PeerFailed:
		s.Close(CloseReasonPeerFailed)
	}
}
