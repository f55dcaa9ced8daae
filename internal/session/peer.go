package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Description はSDPの種別とペイロード。クライアントとの間でそのまま中継する。
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// PeerState はピア接続の状態変化を表す。
type PeerState int

const (
	PeerConnecting PeerState = iota
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

// PeerConnection はメディア転送エンジンのピア接続。
type PeerConnection interface {
	// Answer はオファーを適用してアンサーを生成し、ICE候補の収集完了まで待って返す。
	Answer(ctx context.Context, offer Description) (Description, error)
	Close() error
}

// PeerFactory はセッションごとにピア接続を生成する。
type PeerFactory interface {
	New(onState func(PeerState)) (PeerConnection, error)
}

// PionPeerFactory はpion/webrtcによるPeerFactory実装。
type PionPeerFactory struct {
	config webrtc.Configuration
}

var _ PeerFactory = (*PionPeerFactory)(nil)

// NewPionPeerFactory は指定されたICEサーバーURLでPionPeerFactoryを生成する。
func NewPionPeerFactory(iceServers []string) *PionPeerFactory {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &PionPeerFactory{config: cfg}
}

// New はピア接続を生成し、接続状態の変化をonStateへ通知する。
func (f *PionPeerFactory) New(onState func(PeerState)) (PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if onState == nil {
			return
		}
		switch st {
		case webrtc.PeerConnectionStateConnected:
			onState(PeerConnected)
		case webrtc.PeerConnectionStateDisconnected:
			onState(PeerDisconnected)
		case webrtc.PeerConnectionStateFailed:
			onState(PeerFailed)
		case webrtc.PeerConnectionStateClosed:
			onState(PeerClosed)
		default:
			onState(PeerConnecting)
		}
	})
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) Answer(ctx context.Context, offer Description) (Description, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return Description{}, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("failed to create answer: %w", err)
	}

	// トリクルICEは使わず、候補を含めたアンサーを1回で返す
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return Description{}, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return Description{}, fmt.Errorf("ICE gathering interrupted: %w", ctx.Err())
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return Description{}, errors.New("local description is not set")
	}
	return Description{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

var errEmptyAnswer = errors.New("engine returned an empty answer")
