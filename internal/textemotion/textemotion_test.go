package textemotion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

func TestHTTPDominant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req detectReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text != "I got the job" {
			t.Errorf("unexpected body %+v err=%v", req, err)
		}
		fmt.Fprint(w, `{"emotions":[{"label":"joy","score":0.9},{"label":"neutral","score":0.1}],"dominant_emotion":"joy"}`)
	}))
	defer srv.Close()

	label, err := NewHTTP(srv.URL+"/", "tok", nil).Classify(context.Background(), "I got the job")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "joy" {
		t.Fatalf("expected joy, got %q", label)
	}
}

func TestHTTPBestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"emotions":[{"label":"neutral","score":0.2},{"label":"sadness","score":0.7},{"label":"fear","score":0.1}]}`)
	}))
	defer srv.Close()

	label, err := NewHTTP(srv.URL, "", srv.Client()).Classify(context.Background(), "I miss her")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "sadness" {
		t.Fatalf("expected sadness, got %q", label)
	}
}

func TestHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusInternalServerError, "model not loaded"},
		{"bad json", http.StatusOK, "{"},
		{"empty", http.StatusOK, `{"emotions":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			if _, err := NewHTTP(srv.URL, "", nil).Classify(context.Background(), "hi"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":0,"model":"test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`, body)
	}))
}

func TestOpenAI(t *testing.T) {
	srv := chatServer(t, `{"label": "sadness"}`)
	defer srv.Close()

	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	label, err := NewOpenAI(client, "gpt-4o-mini").Classify(context.Background(), "I lost my keys again")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "sadness" {
		t.Fatalf("expected sadness, got %q", label)
	}
}

func TestOpenAIBadContent(t *testing.T) {
	srv := chatServer(t, "I think it is sadness")
	defer srv.Close()

	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if _, err := NewOpenAI(client, "gpt-4o-mini").Classify(context.Background(), "hmm"); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}
