// Package stt turns captured speech into text, either by running an external
// recognizer binary or (see whispercpp) through the in-process whisper.cpp
// bindings.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"moodvox/pkg/audioconv"
	"moodvox/pkg/pcm"
)

// AudioPlaceholder in a command is replaced by the path of the WAV file.
// Without it the path is appended as the last argument.
const AudioPlaceholder = "{audio}"

// Exec runs a recognizer command, e.g. "whisper-cli -m models/ggml-base.bin
// -nt -f {audio}". Stdout is taken as the transcript; a JSON object with a
// "text" field is unwrapped.
type Exec struct {
	cmd []string
	mu  sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

func NewExec(command string) (*Exec, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &Exec{cmd: args}, nil
}

func (e *Exec) Transcribe(ctx context.Context, b pcm.Buffer) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp("", "moodvox_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	path := file.Name()
	file.Close()
	defer os.Remove(path)

	if err := audioconv.WriteWAV(path, b); err != nil {
		return "", err
	}

	args := e.args(path)
	command := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := parseOutput(stdout.Bytes())
	log.Debug("Exec transcript", "cmd", args[0], "text", text)
	return text, nil
}

func (e *Exec) args(path string) []string {
	args := make([]string, 0, len(e.cmd)+1)
	replaced := false
	for _, a := range e.cmd {
		if strings.Contains(a, AudioPlaceholder) {
			a = strings.ReplaceAll(a, AudioPlaceholder, path)
			replaced = true
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, path)
	}
	return args
}

func parseOutput(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var res execResult
		if err := json.Unmarshal(trimmed, &res); err == nil {
			return strings.TrimSpace(res.Text)
		}
	}
	return strings.Join(strings.Fields(string(trimmed)), " ")
}
