package audioconv

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes mono float32 PCM as a 16-bit PCM WAV file. The encoder
// seeks back to patch the RIFF header, hence the WriteSeeker.
func EncodeWAV(w io.WriteSeeker, pcm []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(min(max(s, -1), 1) * 32767)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return enc.Close()
}

// SeekBuffer is an in-memory io.WriteSeeker.
type SeekBuffer struct {
	buf []byte
	pos int
}

func (b *SeekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *SeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

func (b *SeekBuffer) Bytes() []byte {
	return b.buf
}
