package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	log "log/slog"

	"furnivox/internal/audio"
	"furnivox/internal/audio/mic"
	"furnivox/internal/client"
	"furnivox/internal/command"
	"furnivox/internal/ipc"
	"furnivox/internal/notify"
	"furnivox/internal/tts"
	"furnivox/pkg/audioconv"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

type daemon struct {
	rec     *mic.Recorder
	api     *client.Client
	cue     *notify.Cue
	voice   *tts.Speaker
	ducker  *audio.Ducker
	timeout time.Duration
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	server := cli.StringP("server", "s", "http://localhost:5000", "furnivox-server base URL")
	socket := cli.String("socket", ipc.DefaultSocketPath(), "Control socket path")
	cuePath := cli.String("beep", "beep.mp3", "Listening cue (mp3), empty for none")
	lang := cli.String("lang", "en", "espeak-ng voice language")
	duck := cli.Bool("duck", true, "Lower other applications while listening")
	silence := cli.Duration("silence", 600*time.Millisecond, "Trailing silence that ends a command")
	maxLen := cli.Duration("max-length", 10*time.Second, "Longest recording")
	timeout := cli.DurationP("timeout", "t", 60*time.Second, "Server request timeout")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	if v := os.Getenv("FURNIVOX_SERVER"); v != "" && !cli.CommandLine.Changed("server") {
		*server = v
	}

	vad := audio.DefaultVADOptions()
	vad.Silence = *silence
	vad.MaxLength = *maxLen

	d := &daemon{
		rec:     mic.NewRecorder(vad),
		api:     client.New(*server, *timeout),
		cue:     notify.NewCue(*cuePath),
		voice:   tts.NewSpeaker(*lang),
		timeout: *timeout,
	}
	if *duck {
		d.ducker = audio.NewDucker(audio.Pactl{}, []string{"furnivox-mic", "espeak-ng"}, 10)
	}

	if err := d.rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer d.rec.Close()

	log.Debug("Loaded recorder")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if msg, err := d.api.Ping(ctx); err != nil {
		log.Warn("Server not reachable yet", "server", *server, "err", err)
	} else {
		log.Debug("Server up", "message", msg)
	}

	ctl, err := ipc.Listen(*socket)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "socket", ctl.Addr())

	err = ctl.Serve(ctx, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			d.handleTrigger(ctx)
		case ipc.CmdSay:
			d.handleSay(ctx, msg.Text)
		case ipc.CmdQuit:
			stop()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Control socket failed", "err", err)
	}
	log.Info("Bye")
}

func (d *daemon) handleTrigger(ctx context.Context) {
	if err := d.cue.Play(); err != nil {
		log.Warn("Failed to play cue", "err", err)
	}
	if err := notify.Desktop(ctx, "Listening...", ""); err != nil {
		log.Debug("Failed to notify", "err", err)
	}

	log.Info("Starting listening")

	if d.ducker != nil {
		if err := d.ducker.Duck(ctx, 0.3, 150*time.Millisecond); err != nil {
			log.Debug("Failed to duck", "err", err)
		}
	}
	pcm, err := d.rec.RecordAuto(ctx)
	if d.ducker != nil {
		if err := d.ducker.Restore(context.WithoutCancel(ctx), 300*time.Millisecond); err != nil {
			log.Debug("Failed to restore volume", "err", err)
		}
	}
	if err != nil {
		log.Error("Failed to record", "err", err)
		return
	}

	log.Info("Recorded", "samples", len(pcm))

	var wav audioconv.SeekBuffer
	if err := audioconv.EncodeWAV(&wav, pcm, audioconv.SampleRate); err != nil {
		log.Error("Failed to encode", "err", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	action, err := d.api.ProcessAudio(reqCtx, bytes.NewReader(wav.Bytes()), "audio/wav")
	if err != nil {
		log.Error("Failed to process audio", "err", err)
		return
	}

	d.report(action["transcript"], action)
}

// handleSay skips recording and sends text as if it had been heard.
func (d *daemon) handleSay(ctx context.Context, text string) {
	if text == "" {
		log.Warn("Empty say command")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	action, err := d.api.ProcessCommand(reqCtx, text)
	if err != nil {
		log.Error("Failed to process command", "err", err)
		return
	}

	d.report(text, action)
}

func (d *daemon) report(heard any, action command.Action) {
	log.Info("──────── FURNIVOX ────────")
	log.Info("heard:  ", "text", heard)
	log.Info("action: ", "name", action.Name())
	for k, v := range action {
		if k != "action" && k != "transcript" && k != "response" {
			log.Info("  arg", k, v)
		}
	}
	log.Info("──────────────────────────")

	if action.Name() != command.ActionQuery {
		return
	}
	if err := d.voice.Speak(action.Response()); err != nil {
		log.Error("Failed to voice out", "err", err)
	}
}
