// Package audio captures speech from the default input device.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	log "log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"moodvox/internal/vad"
	"moodvox/pkg/pcm"
)

// ErrNoSpeech is returned by RecordAuto when nothing above the detector
// threshold was heard before the deadline.
var ErrNoSpeech = errors.New("no speech recorded")

const frameDuration = 20 * time.Millisecond

type Recorder struct {
	rate    int
	vadMode int
}

func NewRecorder(rate, vadMode int) *Recorder {
	if rate <= 0 {
		rate = 16000
	}
	return &Recorder{rate: rate, vadMode: vadMode}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func (r *Recorder) frameSize() int {
	return r.rate * int(frameDuration/time.Millisecond) / 1000
}

// Record captures exactly d of audio.
func (r *Recorder) Record(ctx context.Context, d time.Duration) (pcm.Buffer, error) {
	if d <= 0 {
		return pcm.Buffer{}, errors.New("record duration must be positive")
	}

	buf := make([]int16, r.frameSize())
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.rate), len(buf), buf)
	if err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Stop()

	total := int(float64(r.rate) * d.Seconds())
	out := make([]int16, 0, total)
	for len(out) < total {
		if err := ctx.Err(); err != nil {
			return pcm.Buffer{}, err
		}
		if err := stream.Read(); err != nil {
			return pcm.Buffer{}, err
		}
		out = append(out, buf...)
	}

	return pcm.Buffer{Samples: out[:total], SampleRate: r.rate}, nil
}

// RecordAuto waits for speech and stops after trailing silence or max.
func (r *Recorder) RecordAuto(ctx context.Context, max time.Duration) (pcm.Buffer, error) {
	if max <= 0 {
		max = 15 * time.Second
	}

	det := r.detector()
	ep := vad.NewEndpointer(frameDuration, vad.DefaultHangover, max)

	buf := make([]int16, r.frameSize())
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.rate), len(buf), buf)
	if err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Stop()

	out := make([]int16, 0, r.rate*3)
	for {
		if err := ctx.Err(); err != nil {
			return pcm.Buffer{}, err
		}
		if err := stream.Read(); err != nil {
			return pcm.Buffer{}, err
		}

		speech, err := det.IsSpeech(buf)
		if err != nil {
			return pcm.Buffer{}, err
		}

		keep, done := ep.Push(speech)
		if keep {
			out = append(out, buf...)
		}
		if done {
			break
		}
	}

	if !ep.Heard() {
		return pcm.Buffer{}, ErrNoSpeech
	}
	return pcm.Buffer{Samples: out, SampleRate: r.rate}, nil
}

func (r *Recorder) detector() vad.Detector {
	if webrtcvad.ValidRateAndFrameLength(r.rate, r.frameSize()) {
		v, err := webrtcvad.New()
		if err == nil {
			if err = v.SetMode(r.vadMode); err == nil {
				return webrtcDetector{vad: v, rate: r.rate}
			}
		}
		log.Warn("WebRTC VAD unavailable, using energy gate", "err", err)
	} else {
		log.Warn("Sample rate not supported by WebRTC VAD, using energy gate", "rate", r.rate)
	}
	return vad.Energy{Threshold: vad.DefaultEnergyThreshold}
}

type webrtcDetector struct {
	vad  *webrtcvad.VAD
	rate int
}

func (w webrtcDetector) IsSpeech(frame []int16) (bool, error) {
	b := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return w.vad.Process(w.rate, b)
}
