package stt

import "context"

// Result represents a speech-to-text recognition result.
type Result struct {
	Text         string  // The transcribed text
	Confidence   float64 // Confidence score (0-1)
	LanguageCode string  // Language the audio was recognized as
}

// Recognizer defines the interface for speech-to-text providers.
type Recognizer interface {
	// Recognize transcribes a complete utterance of 16-bit PCM samples.
	Recognize(ctx context.Context, samples []int16, sampleRate int, languageCode string) (Result, error)
}
