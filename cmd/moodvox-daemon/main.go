package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"moodvox/internal/app"
	"moodvox/internal/bus"
	"moodvox/internal/config"
	"moodvox/internal/ipc"
	"moodvox/pkg/pcm"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

const turnTimeout = 2 * time.Minute

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "Config file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
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
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Microphone: true})
	if err != nil {
		log.Error("Failed to boot", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	d := &daemon{ctx: ctx, app: a}
	d.worker = ipc.NewWorker(d.turn)

	srv, err := ipc.StartServer(cfg.IPC.Socket, d.handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	if b := a.Bus(); b != nil {
		go b.Run(ctx, d.handleBus)
	}

	log.Info("Boot up - successful", "socket", cfg.IPC.Socket)

	<-ctx.Done()
	log.Info("Shutting down")

	// the running turn still holds the model, the journal and the device
	d.worker.Shutdown()
}

type daemon struct {
	ctx    context.Context
	app    *app.App
	worker *ipc.Worker
}

// handle accepts a control command and runs the turn in the background.
// Only one turn runs at a time.
func (d *daemon) handle(msg ipc.ControlMessage) error {
	switch msg.Cmd {
	case ipc.CmdTrigger:
	case ipc.CmdFile:
		if msg.File == "" {
			return errors.New("file command needs a path")
		}
		if _, err := os.Stat(msg.File); err != nil {
			return err
		}
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return fmt.Errorf("unknown command %q", msg.Cmd)
	}

	return d.worker.Start(msg)
}

func (d *daemon) handleBus(m bus.Message) {
	var msg ipc.ControlMessage
	switch m.Kind {
	case bus.KindTrigger:
		msg = ipc.ControlMessage{Cmd: ipc.CmdTrigger}
	case bus.KindFile:
		msg = ipc.ControlMessage{Cmd: ipc.CmdFile, File: m.Content}
	default:
		return
	}
	if err := d.handle(msg); err != nil {
		log.Warn("Bus command rejected", "from", m.From, "kind", m.Kind, "err", err)
	}
}

func (d *daemon) turn(msg ipc.ControlMessage) {
	ctx, cancel := context.WithTimeout(d.ctx, turnTimeout)
	defer cancel()

	var (
		buf pcm.Buffer
		err error
	)
	if msg.Cmd == ipc.CmdFile {
		buf, err = d.app.Load(ctx, msg.File)
	} else {
		d.app.Cue(ctx)
		log.Info("Starting listening")
		buf, err = d.app.Capture(ctx)
	}
	if err != nil {
		log.Error("Failed to capture", "err", err)
		return
	}

	rep, err := d.app.Run(ctx, buf)
	if err != nil {
		log.Error("Turn failed", "id", rep.ID, "err", err)
		return
	}
	log.Info("Turn done", "id", rep.ID, "emotion", rep.Emotion, "action", rep.Action, "elapsed", rep.Elapsed)
}
