//go:build !whisper

package main

import (
	"errors"

	"furnivox/internal/nlu"
)

func newWhisper(string) (nlu.Transcriber, func(), error) {
	return nil, nil, errors.New("--stt whisper needs a build with -tags whisper")
}
