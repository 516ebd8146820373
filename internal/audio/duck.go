package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// Stream is one playback stream of the sound server.
type Stream struct {
	ID      int
	Volume  int // percent
	AppName string
}

// Mixer lists playback streams and sets their volume.
type Mixer interface {
	Streams(ctx context.Context) ([]Stream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker lowers the volume of other applications while the microphone is
// open and restores it afterwards. Streams of the applications named in
// self are left alone.
type Ducker struct {
	mixer Mixer

	mu       sync.Mutex
	active   bool
	self     []string
	original map[int]int
	floor    int
}

func NewDucker(m Mixer, self []string, floor int) *Ducker {
	return &Ducker{
		mixer:    m,
		self:     append([]string(nil), self...),
		original: make(map[int]int),
		floor:    min(max(floor, 0), maxVolume),
	}
}

// Duck fades every foreign stream to volume*factor, not below the floor.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.original = make(map[int]int)
	var targets []fadeTarget
	for _, s := range streams {
		if slices.Contains(d.self, s.AppName) {
			continue
		}
		to := int(math.Round(min(max(float64(s.Volume)*factor, float64(d.floor)), maxVolume)))
		d.original[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: to})
	}

	if err := d.fade(ctx, targets, fade); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams
// that appeared after Duck are not touched.
func (d *Ducker) Restore(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || slices.Contains(d.self, s.AppName) {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.fade(ctx, targets, fade); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) fade(ctx context.Context, targets []fadeTarget, dur time.Duration) error {
	if len(targets) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := max(int(dur/minStep), 1)
	if dur <= 0 {
		steps = 0
	}

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := 1.0
		if steps > 0 {
			frac = float64(i) / float64(steps)
		}
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.mixer.SetVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			time.Sleep(dur / time.Duration(steps))
		}
	}
	return nil
}

// Pactl drives PulseAudio or PipeWire through the pactl command.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]Stream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}

// parseSinkInputs reads the first volume and application.name of every
// "Sink Input #N" block of `pactl list sink-inputs`.
func parseSinkInputs(text string) []Stream {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []Stream
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for line := range strings.Lines(body) {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}

			// application.name = "Firefox"
			if rest, ok := strings.CutPrefix(line, "application.name ="); ok && s.AppName == "" {
				s.AppName = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
