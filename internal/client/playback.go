package client

import (
	"log"
	"sync"
	"time"

	"github.com/mbeckmann/voicebot/internal/protocol"
)

// Clock is the monotonic audio-output timeline. It is independent of
// wall-clock and network time; tests drive it manually.
type Clock interface {
	Now() time.Duration
}

// Output schedules buffers on the audio device. done must be invoked when
// the buffer has physically finished playing, which is a later event than
// the bytes being handed over. Play may invoke done synchronously; the
// scheduler never holds its lock across the call.
type Output interface {
	Play(samples []int16, sampleRate int, at time.Duration, done func())
}

// SystemClock measures the audio timeline from its creation instant.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

// PlaybackScheduler decodes incoming chunks and schedules them back-to-back
// on the audio clock: chunk n starts at max(now, end of chunk n-1), so
// playback is gapless when chunks arrive fast enough and never overlaps.
type PlaybackScheduler struct {
	clock  Clock
	out    Output
	logger *log.Logger

	// onComplete fires exactly once per request, after audio_end has been
	// received and the last scheduled chunk finished playing.
	onComplete func(requestID string)

	mu        sync.Mutex
	requestID string
	next      time.Duration
	expected  int // next chunk number to schedule
	held      map[int]protocol.AudioChunk
	scheduled int
	played    int
	ended     bool
	completed bool
}

// NewPlaybackScheduler creates a scheduler. onComplete may be nil.
func NewPlaybackScheduler(clock Clock, out Output, logger *log.Logger, onComplete func(requestID string)) *PlaybackScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &PlaybackScheduler{
		clock:      clock,
		out:        out,
		logger:     logger,
		onComplete: onComplete,
		held:       make(map[int]protocol.AudioChunk),
	}
}

// Enqueue accepts chunk n of a request. Chunks arriving out of order are
// buffered until their predecessors have been scheduled; duplicates are
// dropped. A chunk numbered 1 for a different request id starts a new
// schedule and discards whatever the previous request left behind.
func (s *PlaybackScheduler) Enqueue(chunk protocol.AudioChunk) {
	s.mu.Lock()

	if chunk.RequestID != s.requestID {
		if chunk.ChunkNumber != 1 {
			s.logger.Printf("playback: dropping stale chunk %d of request %s", chunk.ChunkNumber, chunk.RequestID)
			s.mu.Unlock()
			return
		}
		s.resetLocked(chunk.RequestID)
	}

	switch {
	case chunk.ChunkNumber < s.expected:
		s.logger.Printf("playback: dropping duplicate chunk %d of request %s", chunk.ChunkNumber, chunk.RequestID)
		s.mu.Unlock()
		return
	case chunk.ChunkNumber > s.expected:
		s.logger.Printf("playback: holding out-of-order chunk %d (expected %d)", chunk.ChunkNumber, s.expected)
		s.held[chunk.ChunkNumber] = chunk
		s.mu.Unlock()
		return
	}

	jobs := []playJob{s.scheduleLocked(chunk)}
	for {
		next, ok := s.held[s.expected]
		if !ok {
			break
		}
		delete(s.held, s.expected)
		jobs = append(jobs, s.scheduleLocked(next))
	}
	s.mu.Unlock()

	// Play outside the lock: the output may fire done synchronously, and
	// chunkDone takes the lock again.
	for _, j := range jobs {
		requestID := j.requestID
		s.out.Play(j.samples, j.sampleRate, j.at, func() {
			s.chunkDone(requestID)
		})
	}
}

// EndOfStream records that no further chunks will arrive for the request.
func (s *PlaybackScheduler) EndOfStream(requestID string, totalChunks int) {
	s.mu.Lock()
	if requestID != "" && requestID != s.requestID {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if totalChunks > 0 && totalChunks != s.scheduled+len(s.held) {
		s.logger.Printf("playback: audio_end reports %d chunks, have %d", totalChunks, s.scheduled+len(s.held))
	}
	id := s.requestID
	complete := s.completeLocked()
	s.mu.Unlock()

	if complete {
		s.fireComplete(id)
	}
}

// Discard drops all state for the request, used when the request errored.
// Already-playing audio is not cut short; nothing further is scheduled.
func (s *PlaybackScheduler) Discard(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if requestID != s.requestID {
		return
	}
	s.resetLocked("")
}

// playJob is one chunk placed on the timeline, ready to hand to the output.
type playJob struct {
	samples    []int16
	sampleRate int
	at         time.Duration
	requestID  string
}

// scheduleLocked places the chunk on the timeline. The first chunk of a
// request starts right now to minimize time-to-first-audio; later chunks
// start when their predecessor ends, or immediately if playback has already
// drained (producer slower than playback - a gap, never an overlap).
func (s *PlaybackScheduler) scheduleLocked(chunk protocol.AudioChunk) playJob {
	start := s.clock.Now()
	if s.next > start {
		start = s.next
	}
	s.next = start + chunk.Duration()
	s.expected = chunk.ChunkNumber + 1
	s.scheduled++

	return playJob{
		samples:    chunk.Samples,
		sampleRate: chunk.SampleRate,
		at:         start,
		requestID:  s.requestID,
	}
}

func (s *PlaybackScheduler) chunkDone(requestID string) {
	s.mu.Lock()
	if requestID != s.requestID {
		s.mu.Unlock()
		return
	}
	s.played++
	complete := s.completeLocked()
	s.mu.Unlock()

	if complete {
		s.fireComplete(requestID)
	}
}

// completeLocked checks both completion conditions: the end-of-stream
// control message has arrived AND every scheduled chunk's playback callback
// has fired. "All bytes received" and "all audio physically played" are
// different events; consumers must wait for the latter.
func (s *PlaybackScheduler) completeLocked() bool {
	if s.completed || !s.ended {
		return false
	}
	if s.played != s.scheduled || len(s.held) != 0 {
		return false
	}
	s.completed = true
	return true
}

func (s *PlaybackScheduler) fireComplete(requestID string) {
	if s.onComplete != nil {
		s.onComplete(requestID)
	}
}

func (s *PlaybackScheduler) resetLocked(requestID string) {
	s.requestID = requestID
	s.next = 0
	s.expected = 1
	s.held = make(map[int]protocol.AudioChunk)
	s.scheduled = 0
	s.played = 0
	s.ended = false
	s.completed = false
}

// Stats returns the scheduled and played chunk counts, for tests and UI.
func (s *PlaybackScheduler) Stats() (scheduled, played int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled, s.played
}
