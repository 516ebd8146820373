//go:build whisper

package main

import (
	log "log/slog"

	"furnivox/internal/nlu"
	"furnivox/pkg/stt"
)

func newWhisper(modelPath string) (nlu.Transcriber, func(), error) {
	t, err := stt.NewTranscriber(modelPath, stt.Options{Language: "auto"})
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Loaded whisper", "model", modelPath)
	return t, func() { t.Close() }, nil
}
