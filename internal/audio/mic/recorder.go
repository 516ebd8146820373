package mic

import (
	"context"
	"errors"

	"github.com/gordonklaus/portaudio"

	"furnivox/internal/audio"
)

var ErrNoSpeech = errors.New("no speech recorded")

// Recorder captures the default input device as mono float32 PCM.
type Recorder struct {
	opt audio.VADOptions
}

func NewRecorder(opt audio.VADOptions) *Recorder {
	return &Recorder{opt: opt}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records one utterance: it waits for speech, then stops after
// the configured trailing silence, at MaxLength, or when ctx ends.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	buf := make([]float32, r.opt.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.opt.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	seg := audio.NewSegmenter(r.opt)
	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if seg.Push(buf) {
			break
		}
	}

	if !seg.Speaking() {
		return nil, ErrNoSpeech
	}
	return seg.Samples(), nil
}
