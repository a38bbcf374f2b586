package main

import (
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/spf13/pflag"

	"moodvox/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon socket path")
	file := cli.StringP("file", "f", "", "Run a turn on an audio file instead of the microphone")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: moodvox-ctl [-s socket] [trigger | file <path> | -f <path>]")
		cli.PrintDefaults()
	}
	cli.Parse()

	switch args := cli.Args(); {
	case len(args) == 0, args[0] == ipc.CmdTrigger:
	case args[0] == ipc.CmdFile && len(args) == 2:
		*file = args[1]
	default:
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: ipc.CmdTrigger}
	if *file != "" {
		abs, err := filepath.Abs(*file)
		if err != nil {
			fmt.Println("bad path:", err)
			os.Exit(1)
		}
		msg = ipc.ControlMessage{Cmd: ipc.CmdFile, File: abs}
	}

	if err := ipc.Send(*socket, msg); err != nil {
		fmt.Println("moodvox-daemon:", err)
		os.Exit(1)
	}
}
