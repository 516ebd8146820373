package nlu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"furnivox/pkg/audioconv"
)

var ErrNoTranscriber = errors.New("speech transcription is not configured")

// Transcriber turns mono 16 kHz PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// OpenAITranscriber sends the audio, re-encoded as WAV, to the OpenAI
// transcription endpoint.
type OpenAITranscriber struct {
	client openai.Client
	model  string
}

func NewOpenAITranscriber(client openai.Client, model string) *OpenAITranscriber {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAITranscriber{client: client, model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	if len(pcm16k) == 0 {
		return "", errors.New("no audio samples provided")
	}

	var wav audioconv.SeekBuffer
	if err := audioconv.EncodeWAV(&wav, pcm16k, audioconv.SampleRate); err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav.Bytes()), "command.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	return strings.TrimSpace(res.Text), nil
}
