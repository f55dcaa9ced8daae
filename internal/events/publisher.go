// Package events は面接ライフサイクルのイベントをメッセージブローカーへ発行する。
// 発行は付随的な通知であり、失敗しても呼び出し元の処理は継続する。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// イベント種別（ルーティングキーとして使用する）
const (
	TypeInterviewCreated = "interview.created"
	TypeResumeUploaded   = "resume.uploaded"
	TypeSessionOpened    = "session.opened"
	TypeSessionClosed    = "session.closed"
)

// Event はブローカーに発行するイベント。
type Event struct {
	Type        string            `json:"type"`
	InterviewID string            `json:"interview_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Publisher はイベントの発行先。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// amqpChannel はamqp.Channelのうち発行に使うメソッド。テストで差し替える。
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher はtopic exchangeにJSONでイベントを発行する。
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher はブローカーに接続し、exchangeを宣言してPublisherを生成する。
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Publish はイベントをイベント種別をルーティングキーとして発行する。
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopPublisher はイベント発行が無効な場合のPublisher。
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// Publish は何もしない。
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// PublishBestEffort はイベントを発行し、失敗した場合は警告ログのみ出力する。
func PublishBestEffort(ctx context.Context, p Publisher, logger *slog.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn("イベントの発行に失敗しました",
			slog.String("type", event.Type),
			slog.String("interview_id", event.InterviewID),
			slog.String("error", err.Error()),
		)
	}
}
