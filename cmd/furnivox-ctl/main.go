package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"furnivox/internal/client"
	"furnivox/internal/command"
	"furnivox/internal/ipc"
)

const usage = `usage: furnivox-ctl [flags] <command>

commands:
  trigger      start a recording in a running furnivox-mic
  say <text>   send a text command to the server and print the action;
               with --mic, hand it to furnivox-mic instead
  ping         check that the server is up
`

func main() {
	server := cli.StringP("server", "s", envOr("FURNIVOX_SERVER", "http://localhost:5000"), "Server base URL")
	socket := cli.String("socket", ipc.DefaultSocketPath(), "furnivox-mic control socket")
	useWS := cli.Bool("ws", false, "Send say commands over the websocket endpoint")
	viaMic := cli.Bool("mic", false, "Send say commands to furnivox-mic, which speaks the reply")
	timeout := cli.DurationP("timeout", "t", 60*time.Second, "Request timeout")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch args[0] {
	case "trigger":
		err = ipc.Send(*socket, ipc.ControlMessage{Cmd: ipc.CmdTrigger})
		if err != nil {
			err = fmt.Errorf("furnivox-mic not running: %w", err)
		}
	case "say":
		text := strings.Join(args[1:], " ")
		if *viaMic {
			err = ipc.Send(*socket, ipc.ControlMessage{Cmd: ipc.CmdSay, Text: text})
			if err != nil {
				err = fmt.Errorf("furnivox-mic not running: %w", err)
			}
			break
		}
		err = say(ctx, *server, text, *useWS)
	case "ping":
		var msg string
		msg, err = client.New(*server, *timeout).Ping(ctx)
		if err == nil {
			fmt.Println(msg)
		}
	default:
		cli.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func say(ctx context.Context, server, text string, useWS bool) error {
	var (
		action command.Action
		err    error
	)
	if useWS {
		var s *client.Stream
		s, err = client.Dial(ctx, server, time.Second)
		if err != nil {
			return err
		}
		defer s.Close()
		action, err = s.Send(ctx, text)
	} else {
		action, err = client.New(server, 0).ProcessCommand(ctx, text)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(action)
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
