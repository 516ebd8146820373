package notify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Cue plays a short mp3 as the "listening" signal.
type Cue struct {
	path string

	once    sync.Once
	initErr error
	rate    beep.SampleRate
}

func NewCue(path string) *Cue {
	return &Cue{path: path}
}

// Play blocks until the sound has finished. A Cue with an empty path is
// silent.
func (c *Cue) Play() error {
	if c.path == "" {
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	c.once.Do(func() {
		c.rate = format.SampleRate
		c.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if c.initErr != nil {
		return fmt.Errorf("init speaker: %w", c.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != c.rate {
		s = beep.Resample(4, format.SampleRate, c.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

// Desktop shows a notification through notify-send.
func Desktop(ctx context.Context, summary, body string) error {
	args := []string{"--app-name=furnivox", "--expire-time=3000", summary}
	if body != "" {
		args = append(args, body)
	}
	if err := exec.CommandContext(ctx, "notify-send", args...).Run(); err != nil {
		return fmt.Errorf("notify-send: %w", err)
	}
	return nil
}
