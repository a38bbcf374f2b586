package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"moodvox/internal/app"
	"moodvox/internal/config"
	"moodvox/internal/journal"
	"moodvox/internal/turn"
	"moodvox/pkg/pcm"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "Config file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	file := cli.StringP("file", "f", "", "Audio file to use instead of the microphone")
	duration := cli.Float64P("duration", "d", 0, "Recording length in seconds (fixed capture)")
	history := cli.IntP("history", "n", 0, "Print the last N journaled turns and exit")
	cli.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cli.CommandLine.Changed("log") {
		cfg.LogLevel = *logLevel
	}
	if cli.CommandLine.Changed("proxy") {
		cfg.Proxy.Socks = *proxyAddr
	}
	if *duration > 0 {
		cfg.Audio.Capture = "fixed"
		cfg.Audio.RecordSeconds = *duration
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *history > 0 {
		if err := printHistory(ctx, cfg.Journal, *history); err != nil {
			log.Error("Failed to read journal", "err", err)
			os.Exit(1)
		}
		return
	}

	a, err := app.New(ctx, cfg, app.Options{Microphone: *file == ""})
	if err != nil {
		log.Error("Failed to boot", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	var buf pcm.Buffer
	if *file != "" {
		buf, err = a.Load(ctx, *file)
	} else {
		log.Info("Recording", "capture", cfg.Audio.Capture, "seconds", cfg.Audio.RecordSeconds)
		buf, err = a.Capture(ctx)
	}
	if err != nil {
		log.Error("Failed to capture", "err", err)
		os.Exit(1)
	}

	rep, err := a.Run(ctx, buf)
	if err != nil {
		log.Error("Turn failed", "id", rep.ID, "err", err)
		os.Exit(1)
	}
	log.Info("Done", "emotion", rep.Emotion, "action", rep.Action, "elapsed", rep.Elapsed)
}

func printHistory(ctx context.Context, cfg config.JournalConfig, n int) error {
	if cfg.Path == "" {
		return fmt.Errorf("journal disabled")
	}
	store, err := journal.Open(ctx, journal.Config{Path: cfg.Path})
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Println(formatReport(r))
	}
	return nil
}

func formatReport(r turn.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-7s audio=%-7s text=%-7s %s",
		r.StartedAt.Local().Format(time.DateTime), r.Emotion, r.AudioEmotion, r.TextEmotion, r.Action)
	if r.Transcript != "" {
		fmt.Fprintf(&b, "\n    you:   %s", r.Transcript)
	}
	if r.Reply != "" {
		fmt.Fprintf(&b, "\n    reply: %s", r.Reply)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\n    error: %s", r.Error)
	}
	return b.String()
}
