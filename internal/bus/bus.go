// Package bus publishes turn reports to a websocket hub and receives
// remote trigger commands from it.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"moodvox/internal/turn"
)

const (
	KindTurn    = "turn"
	KindTrigger = "trigger"
	KindFile    = "file"

	Broadcast = "ALL"
)

type Message struct {
	From    string       `json:"from"`
	To      string       `json:"to"`
	Kind    string       `json:"kind"`
	Content string       `json:"content"`
	Report  *turn.Report `json:"report,omitempty"`
}

type Bus struct {
	url   string
	shard string

	mu   sync.Mutex
	conn *websocket.Conn

	reconnect time.Duration
	closed    chan struct{}
	closeOnce sync.Once
}

func Dial(ctx context.Context, wsURL, shard string) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus %s: %w", wsURL, err)
	}

	log.Info("Connected to bus", "url", wsURL)
	return &Bus{
		url:       u.String(),
		shard:     shard,
		conn:      conn,
		reconnect: time.Second,
		closed:    make(chan struct{}),
	}, nil
}

// Record publishes a finished turn to every listener.
func (b *Bus) Record(_ context.Context, r turn.Report) error {
	return b.Write(Message{
		To:      Broadcast,
		Kind:    KindTurn,
		Content: fmt.Sprintf("%s %s", r.Emotion, r.Action),
		Report:  &r,
	})
}

func (b *Bus) Write(m Message) error {
	m.From = b.shard
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	log.Debug("Write bus", "kind", m.Kind, "to", m.To)
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// Run reads messages addressed to this shard (or to everyone) and hands
// them to fn until ctx is done or Close is called. A dropped connection is
// redialed.
func (b *Bus) Run(ctx context.Context, fn func(Message)) {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			default:
			}
			if isClosed(err) || errors.Is(err, websocket.ErrCloseSent) {
				log.Warn("Bus connection lost, reconnecting", "url", b.url)
				if !b.redial(ctx) {
					return
				}
				continue
			}
			log.Error("Failed to read bus", "err", err)
			if !b.redial(ctx) {
				return
			}
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Failed to parse bus message", "msg", string(data), "err", err)
			continue
		}
		if m.From == b.shard || (m.To != b.shard && m.To != Broadcast) {
			continue
		}
		fn(m)
	}
}

func (b *Bus) redial(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-b.closed:
			return false
		case <-time.After(b.reconnect):
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
		if err != nil {
			log.Debug("Bus redial failed", "err", err)
			continue
		}

		b.mu.Lock()
		b.conn.Close()
		b.conn = conn
		b.mu.Unlock()
		log.Info("Reconnected to bus", "url", b.url)
		return true
	}
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return b.conn.Close()
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
