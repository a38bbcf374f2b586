// Package playback plays sound files and synthesized speech on the default
// output device.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"moodvox/internal/assets"
)

// DefaultSampleRate is the rate the speaker is opened at; streams at other
// rates are resampled.
const DefaultSampleRate = beep.SampleRate(44100)

const resampleQuality = 4

// ErrAssetMissing is returned by PlayAsset when the file does not exist.
var ErrAssetMissing = assets.ErrAssetMissing

// Ducker lowers other applications while we play.
type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Player struct {
	lib    *assets.Library
	cue    string
	ducker Ducker
	rate   beep.SampleRate

	initOnce sync.Once
	initErr  error

	// one sound at a time
	mu sync.Mutex
}

type Option func(*Player)

func WithDucker(d Ducker) Option {
	return func(p *Player) { p.ducker = d }
}

func WithCue(name string) Option {
	return func(p *Player) { p.cue = name }
}

func NewPlayer(lib *assets.Library, opts ...Option) *Player {
	p := &Player{lib: lib, rate: DefaultSampleRate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PlayAsset plays a named asset to completion. A missing file is reported
// as assets.ErrAssetMissing before the output device is touched.
func (p *Player) PlayAsset(ctx context.Context, name string) error {
	path, err := p.lib.Resolve(name)
	if err != nil {
		return err
	}
	return p.PlayFile(ctx, path)
}

// Cue plays the short sound that marks the start of a recording.
func (p *Player) Cue(ctx context.Context) error {
	if p.cue == "" {
		return nil
	}
	return p.PlayAsset(ctx, p.cue)
}

func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		s, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	defer s.Close()

	log.Debug("Playing", "file", path, "rate", int(format.SampleRate))
	return p.play(ctx, s, format)
}

// PlayMP3 plays an in-memory mp3 stream.
func (p *Player) PlayMP3(ctx context.Context, data []byte) error {
	s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer s.Close()
	return p.play(ctx, s, format)
}

func (p *Player) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	return p.initErr
}

func (p *Player) play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.init(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	if format.SampleRate != p.rate {
		s = beep.Resample(resampleQuality, format.SampleRate, p.rate, s)
	}

	if p.ducker != nil {
		if err := p.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := p.ducker.Unduck(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
