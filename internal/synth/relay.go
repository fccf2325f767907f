// Package synth turns text segments into ordered audio chunks via an external
// text-to-speech capability.
package synth

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/mbeckmann/voicebot/internal/protocol"
	"github.com/mbeckmann/voicebot/internal/tts"
)

// Sequence is a request-shared, strictly increasing chunk counter starting at
// 1. It is safe for concurrent use so synthesis may later fan out across
// segments without breaking global ordering.
type Sequence struct {
	n atomic.Int64
}

// NewSequence creates a counter whose first Next call returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next draws the next chunk number.
func (s *Sequence) Next() int {
	return int(s.n.Add(1))
}

// Current returns the last drawn chunk number.
func (s *Sequence) Current() int {
	return int(s.n.Load())
}

// Relay synthesizes one segment at a time and packages the waveform into an
// ordered chunk.
type Relay struct {
	tts        tts.Client
	maxRetries int
	logger     *log.Logger
}

// Config holds configuration for the relay.
type Config struct {
	// MaxRetries bounds retries of a failed synthesis call (default 1).
	MaxRetries int
}

// New creates a relay around the given TTS client.
func New(client tts.Client, cfg Config, logger *log.Logger) *Relay {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Relay{tts: client, maxRetries: maxRetries, logger: logger}
}

// Synthesize converts a segment into an audio chunk, drawing the chunk number
// from the request's shared sequence. A failure after the bounded retries is
// returned tagged with the request id and segment index; the caller must
// terminate the request rather than continue as if nothing failed.
func (r *Relay) Synthesize(ctx context.Context, requestID, text, voice string, seq *Sequence, segmentIndex int) (protocol.AudioChunk, error) {
	var samples []int16
	var rate int
	var err error

	for attempt := 0; ; attempt++ {
		samples, rate, err = r.tts.Synthesize(ctx, text, voice)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return protocol.AudioChunk{}, ctx.Err()
		}
		if attempt >= r.maxRetries {
			return protocol.AudioChunk{}, fmt.Errorf("synthesis failed for request %s segment %d: %w", requestID, segmentIndex, err)
		}
		r.logger.Printf("synth: retrying segment %d of request %s after error: %v", segmentIndex, requestID, err)
	}

	return protocol.AudioChunk{
		RequestID:   requestID,
		ChunkNumber: seq.Next(),
		Samples:     samples,
		SampleRate:  rate,
		Text:        text,
	}, nil
}
