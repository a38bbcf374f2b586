package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"moodvox/internal/emotion"
	"moodvox/internal/turn"
)

type hub struct {
	srv      *httptest.Server
	received chan Message
	send     chan Message
}

func newHub(t *testing.T) *hub {
	t.Helper()
	h := &hub{received: make(chan Message, 4), send: make(chan Message, 4)}
	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		go func() {
			for m := range h.send {
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			}
		}()

		for {
			var m Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			h.received <- m
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hub) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func TestRecordPublishesReport(t *testing.T) {
	h := newHub(t)
	b, err := Dial(context.Background(), h.url(), "moodvox")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()

	rep := turn.Report{
		ID:         "turn-1",
		Transcript: "I feel great",
		Emotion:    emotion.Happy,
		Action:     "generate_and_speak",
	}
	if err := b.Record(context.Background(), rep); err != nil {
		t.Fatalf("record: %v", err)
	}

	select {
	case m := <-h.received:
		if m.From != "moodvox" || m.To != Broadcast || m.Kind != KindTurn {
			t.Fatalf("unexpected envelope %+v", m)
		}
		if m.Content != "happy generate_and_speak" {
			t.Fatalf("unexpected content %q", m.Content)
		}
		if m.Report == nil || m.Report.ID != "turn-1" || m.Report.Emotion != emotion.Happy {
			t.Fatalf("unexpected report %+v", m.Report)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub received nothing")
	}
}

func TestRunDeliversAddressedMessages(t *testing.T) {
	h := newHub(t)
	b, err := Dial(context.Background(), h.url(), "moodvox")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 4)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, func(m Message) { got <- m })
		close(done)
	}()

	h.send <- Message{From: "hub", To: "lights", Kind: KindTrigger}
	h.send <- Message{From: "moodvox", To: Broadcast, Kind: KindTurn}
	h.send <- Message{From: "hub", To: "moodvox", Kind: KindFile, Content: "/tmp/a.wav"}

	select {
	case m := <-got:
		if m.Kind != KindFile || m.Content != "/tmp/a.wav" {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	b.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected extra messages: %d", len(got))
	}
}

func TestMessageJSON(t *testing.T) {
	data, err := json.Marshal(Message{From: "moodvox", To: Broadcast, Kind: KindTurn, Content: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "report") {
		t.Fatalf("nil report should be omitted: %s", data)
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/ws", "moodvox"); err == nil {
		t.Fatal("expected dial error")
	}
}
