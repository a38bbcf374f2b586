// Package textemotion talks to the external models that label a transcript
// with an emotion. Labels are returned raw; folding them into the three
// turn-level emotions happens in the emotion package.
package textemotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type detectReq struct {
	Text string `json:"text"`
}

type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type detectResp struct {
	Emotions        []Score `json:"emotions"`
	DominantEmotion string  `json:"dominant_emotion"`
}

// HTTP calls an emotion model service exposing POST /detect, e.g. a wrapper
// around j-hartmann/emotion-english-distilroberta-base.
type HTTP struct {
	endpoint string
	token    string
	c        *http.Client
}

func NewHTTP(endpoint, token string, c *http.Client) *HTTP {
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTP{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		c:        c,
	}
}

// Classify returns the dominant label, or the best scored one when the
// service leaves dominant_emotion empty.
func (h *HTTP) Classify(ctx context.Context, text string) (string, error) {
	b, err := json.Marshal(detectReq{Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/detect", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("emotion %s: %s", resp.Status, string(body))
	}

	var out detectResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("emotion decode: %w", err)
	}

	if out.DominantEmotion != "" {
		return out.DominantEmotion, nil
	}
	return top(out.Emotions)
}

func top(scores []Score) (string, error) {
	if len(scores) == 0 {
		return "", errors.New("emotion: empty response")
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Label, nil
}
