package audio

import (
	"math"
	"time"
)

// VADOptions tune the energy based end-of-utterance detection.
type VADOptions struct {
	SampleRate int
	FrameSize  int           // samples per frame
	SilenceRMS float64       // frames at or below this are silence
	Silence    time.Duration // trailing silence that ends an utterance
	MaxLength  time.Duration
}

func DefaultVADOptions() VADOptions {
	return VADOptions{
		SampleRate: 16000,
		FrameSize:  320, // 20ms
		SilenceRMS: 0.015,
		Silence:    600 * time.Millisecond,
		MaxLength:  10 * time.Second,
	}
}

func (o VADOptions) frameDuration() time.Duration {
	return time.Duration(o.FrameSize) * time.Second / time.Duration(o.SampleRate)
}

// MaxFrames is the number of frames after which recording stops anyway.
func (o VADOptions) MaxFrames() int {
	return int(o.MaxLength / o.frameDuration())
}

// Segmenter collects frames from the first voiced one until enough
// trailing silence is seen. Leading silence is dropped.
type Segmenter struct {
	opt      VADOptions
	speaking bool
	silent   int
	frames   int
	out      []float32
}

func NewSegmenter(opt VADOptions) *Segmenter {
	return &Segmenter{
		opt: opt,
		out: make([]float32, 0, opt.SampleRate*3),
	}
}

// Push consumes one frame and reports whether the utterance is complete.
func (s *Segmenter) Push(frame []float32) bool {
	s.frames++
	done := s.frames >= s.opt.MaxFrames()

	if FrameRMS(frame) > s.opt.SilenceRMS {
		s.speaking = true
		s.silent = 0
		s.out = append(s.out, frame...)
		return done
	}

	if !s.speaking {
		return done
	}

	s.silent++
	if time.Duration(s.silent)*s.opt.frameDuration() >= s.opt.Silence {
		return true
	}
	s.out = append(s.out, frame...)
	return done
}

func (s *Segmenter) Speaking() bool {
	return s.speaking
}

func (s *Segmenter) Samples() []float32 {
	return s.out
}

func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
