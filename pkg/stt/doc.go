// Package stt runs speech-to-text locally with whisper.cpp. It needs the
// whisper.cpp library and is only compiled with -tags whisper.
package stt
