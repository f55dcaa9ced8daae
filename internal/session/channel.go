package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var errChannelClosed = errors.New("channel closed")

// WSChannel はWebSocket接続をラップし、送信を書き込みループに集約する。
// Sendは並行に呼び出してよい。
type WSChannel struct {
	ws    *websocket.Conn
	send  chan []byte
	final chan []byte
	done  chan struct{}
	once  sync.Once
}

var _ Channel = (*WSChannel)(nil)

// NewWSChannel はWSChannelを生成し、書き込みループを開始する。
func NewWSChannel(ws *websocket.Conn, maxMessageBytes int64) *WSChannel {
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	c := &WSChannel{
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		final: make(chan []byte, 1),
		done:  make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send はメッセージをJSONにして送信キューに積む。
// クライアントの受信が遅くキューが溢れた場合は接続を閉じる。
func (c *WSChannel) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case <-c.done:
		return errChannelClosed
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return errors.New("send buffer exceeded")
	}
}

// Close はクローズフレームを送って接続を閉じる。2回目以降は何もしない。
func (c *WSChannel) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// CloseWith は最後のメッセージを送信してから接続を閉じる。
func (c *WSChannel) CloseWith(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.Close()
		return
	}
	select {
	case c.final <- payload:
	default:
		c.Close()
	}
}

// Done は接続が閉じられると閉じるチャネルを返す。
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

// ReadLoop は受信したテキストメッセージをhandleへ順に渡す。
// 読み込みエラー（切断を含む）で戻る。handleが戻るまで次のメッセージは読まない。
func (c *WSChannel) ReadLoop(handle func([]byte)) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(data)
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *WSChannel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case msg := <-c.final:
			_ = c.write(websocket.TextMessage, msg)
			c.Close()
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *WSChannel) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
