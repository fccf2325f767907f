package tts

import "context"

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech with the given voice and returns
	// 16-bit PCM samples plus their sample rate.
	Synthesize(ctx context.Context, text, voice string) ([]int16, int, error)
}
