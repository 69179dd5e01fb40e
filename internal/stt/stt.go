// Package stt provides speech-to-text via Deepgram: a prerecorded HTTP
// client for uploaded audio clips and a streaming websocket client for
// live guidance sessions.
package stt

import "context"

// Result is a transcription result.
type Result struct {
	Text       string  // The transcribed text
	Confidence float64 // Confidence score (0-1)
	Final      bool    // Whether this closes an utterance (always true for prerecorded)
}

// Transcriber transcribes a complete audio clip in one call.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (Result, error)
}
