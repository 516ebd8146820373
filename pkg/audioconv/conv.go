package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// SampleRate is the rate every decoder resamples to.
const SampleRate = 16000

var (
	ErrUnsupported = errors.New("unsupported audio format")
	ErrTooLong     = errors.New("audio too long")
)

type Options struct {
	// MaxSamples rejects longer decoded audio with ErrTooLong. Zero means
	// no limit.
	MaxSamples int
}

// Decode reads a whole wav, mp3 or ogg (vorbis, or opus when built with
// -tags opus) stream and returns mono float32 PCM at 16 kHz. The container
// is sniffed from the data; name is only a hint for headerless mp3.
func Decode(r io.Reader, name string, opt Options) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupported)
	}

	var pcm []float32
	switch sniff(data, name) {
	case "wav":
		pcm, err = decodeWAV(bytes.NewReader(data))
	case "mp3":
		pcm, err = decodeMP3(bytes.NewReader(data))
	case "ogg":
		pcm, err = decodeOggVorbis(bytes.NewReader(data))
		if err != nil {
			var opusErr error
			if pcm, opusErr = decodeOggOpus(bytes.NewReader(data)); opusErr == nil {
				err = nil
			} else {
				err = fmt.Errorf("%w: ogg is neither vorbis (%v) nor opus (%v)", ErrUnsupported, err, opusErr)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q (supported: wav/mp3/ogg)", ErrUnsupported, name)
	}
	if err != nil {
		return nil, err
	}

	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		return nil, fmt.Errorf("%w: %d samples, limit %d", ErrTooLong, len(pcm), opt.MaxSamples)
	}
	return pcm, nil
}

func sniff(data []byte, name string) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "wav"
	case ".mp3":
		return "mp3"
	case ".ogg", ".oga", ".opus":
		return "ogg"
	}
	return ""
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav", ErrUnsupported)
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}

	x := intsToFloat32(pb.Data, depth)
	return resample(downmix(x, channels), rate, SampleRate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}

	// go-mp3 always yields interleaved stereo
	return resample(downmix(int16sToFloat32(ints), 2), rate, SampleRate), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return resample(downmix(pcm, format.Channels), format.SampleRate, SampleRate), nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(min(max(float64(v)*scale, -1.0), 1.0))
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// resample does linear interpolation; good enough for speech.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	last := len(in) - 1
	for i := range n {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}
