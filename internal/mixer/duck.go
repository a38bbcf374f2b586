// Package mixer lowers the volume of other PulseAudio/PipeWire streams while
// the assistant is talking and restores it afterwards.
package mixer

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type Stream struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id   int
	from int
	to   int
}

// Runner executes a pactl invocation and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

type Options struct {
	Factor    float64       // target = current * Factor
	MinVolume int           // floor in percent
	Fade      time.Duration // 0 jumps straight to the target
	SelfNames []string      // application.name values left untouched
}

type Ducker struct {
	mu       sync.Mutex
	opt      Options
	run      Runner
	sleep    func(time.Duration)
	active   bool
	original map[int]int
}

func NewDucker(opt Options) *Ducker {
	return newDucker(opt, pactl)
}

func newDucker(opt Options, run Runner) *Ducker {
	if opt.MinVolume < 0 {
		opt.MinVolume = 0
	}
	if opt.MinVolume > maxVolume {
		opt.MinVolume = maxVolume
	}
	if opt.Factor < 0 || opt.Factor > 1 {
		opt.Factor = 1
	}
	return &Ducker{
		opt:      opt,
		run:      run,
		sleep:    time.Sleep,
		original: make(map[int]int),
	}
}

// Duck fades every foreign stream down. Calling it twice is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var targets []fade
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * d.opt.Factor))
		to = max(to, d.opt.MinVolume)
		to = min(to, maxVolume)

		d.original[s.ID] = s.Volume
		targets = append(targets, fade{id: s.ID, from: s.Volume, to: to})
	}

	if err := d.apply(ctx, targets); err != nil {
		return err
	}
	d.active = true
	log.Debug("Ducked streams", "count", len(targets))
	return nil
}

// Unduck restores the streams touched by Duck. Streams that appeared since
// are left alone.
func (d *Ducker) Unduck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var targets []fade
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		targets = append(targets, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.apply(ctx, targets); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s Stream) bool {
	for _, name := range d.opt.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) list(ctx context.Context) ([]Stream, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return ParseSinkInputs(string(out)), nil
}

func (d *Ducker) set(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	if _, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)); err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// apply steps all targets from their current volume to the goal over the
// configured fade, in 10 ms increments or coarser.
func (d *Ducker) apply(ctx context.Context, targets []fade) error {
	if len(targets) == 0 {
		return nil
	}
	if d.opt.Fade <= 0 {
		for _, t := range targets {
			if err := d.set(ctx, t.id, t.to); err != nil {
				return err
			}
		}
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(d.opt.Fade/minStep), 1)
	stepDur := d.opt.Fade / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.set(ctx, t.id, v); err != nil {
				return err
			}
		}
		if i < steps {
			d.sleep(stepDur)
		}
	}
	return nil
}

// ParseSinkInputs reads the output of `pactl list sink-inputs`.
func ParseSinkInputs(text string) []Stream {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []Stream
	for _, block := range parts[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if i := strings.IndexByte(line, '"'); i >= 0 {
					rest := line[i+1:]
					if j := strings.IndexByte(rest, '"'); j >= 0 {
						s.AppName = rest[:j]
					}
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
