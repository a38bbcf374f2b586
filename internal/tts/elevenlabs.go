// Package tts turns reply text into audible speech.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api.elevenlabs.io"

var ErrSynthesisStatus = errors.New("synthesis service returned an error")

// Player plays synthesized speech to completion, either from the stored
// file or straight from memory.
type Player interface {
	PlayFile(ctx context.Context, path string) error
	PlayMP3(ctx context.Context, data []byte) error
}

type ElevenLabsConfig struct {
	Endpoint   string
	APIKey     string
	Voice      string
	ModelID    string
	OutputPath string
}

// ElevenLabs synthesizes speech and plays it. With OutputPath set the mp3 is
// stored there first; otherwise it is played from memory.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	c      *http.Client
	player Player
}

type synthReq struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func NewElevenLabs(cfg ElevenLabsConfig, c *http.Client, player Player) *ElevenLabs {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if c == nil {
		c = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabs{cfg: cfg, c: c, player: player}
}

func (e *ElevenLabs) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	audio, err := e.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	if e.cfg.OutputPath == "" {
		if e.player == nil {
			return nil
		}
		if err := e.player.PlayMP3(ctx, audio); err != nil {
			return fmt.Errorf("play speech: %w", err)
		}
		return nil
	}

	if err := e.store(audio); err != nil {
		return err
	}

	log.Debug("Speech stored", "path", e.cfg.OutputPath, "bytes", len(audio))

	if e.player == nil {
		return nil
	}
	if err := e.player.PlayFile(ctx, e.cfg.OutputPath); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}

// Synthesize returns the mp3 bytes for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	b, err := json.Marshal(synthReq{Text: text, ModelID: e.cfg.ModelID})
	if err != nil {
		return nil, err
	}

	endpoint := e.cfg.Endpoint + "/v1/text-to-speech/" + url.PathEscape(e.cfg.Voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrSynthesisStatus, resp.Status, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, errors.New("tts: empty audio")
	}
	return body, nil
}

func (e *ElevenLabs) store(audio []byte) error {
	if dir := filepath.Dir(e.cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store speech: %w", err)
		}
	}
	if err := os.WriteFile(e.cfg.OutputPath, audio, 0o644); err != nil {
		return fmt.Errorf("store speech: %w", err)
	}
	return nil
}
