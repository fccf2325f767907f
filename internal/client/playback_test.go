package client

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mbeckmann/voicebot/internal/protocol"
)

// manualClock is driven by the test.
type manualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// recordingOutput captures scheduled buffers and lets the test fire their
// completion callbacks explicitly.
type recordingOutput struct {
	mu    sync.Mutex
	plays []scheduledPlay
}

type scheduledPlay struct {
	samples int
	rate    int
	at      time.Duration
	done    func()
}

func (o *recordingOutput) Play(samples []int16, sampleRate int, at time.Duration, done func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plays = append(o.plays, scheduledPlay{samples: len(samples), rate: sampleRate, at: at, done: done})
}

func (o *recordingOutput) starts() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]time.Duration, len(o.plays))
	for i, p := range o.plays {
		out[i] = p.at
	}
	return out
}

func (o *recordingOutput) finishAll() {
	o.mu.Lock()
	plays := append([]scheduledPlay(nil), o.plays...)
	o.plays = o.plays[:0]
	o.mu.Unlock()
	for _, p := range plays {
		p.done()
	}
}

// chunkOf builds a chunk whose duration is ms milliseconds at 24 kHz.
func chunkOf(requestID string, n int, ms int) protocol.AudioChunk {
	return protocol.AudioChunk{
		RequestID:   requestID,
		ChunkNumber: n,
		Samples:     make([]int16, 24*ms),
		SampleRate:  24000,
	}
}

func newTestScheduler(onComplete func(string)) (*PlaybackScheduler, *manualClock, *recordingOutput) {
	clock := &manualClock{}
	out := &recordingOutput{}
	s := NewPlaybackScheduler(clock, out, log.New(io.Discard, "", 0), onComplete)
	return s, clock, out
}

// inlineOutput finishes every buffer the moment it is handed over, the way a
// zero-latency or discarding device would.
type inlineOutput struct{}

func (inlineOutput) Play(samples []int16, sampleRate int, at time.Duration, done func()) {
	done()
}

func TestOutputMayCompleteSynchronously(t *testing.T) {
	completions := 0
	s := NewPlaybackScheduler(&manualClock{}, inlineOutput{}, log.New(io.Discard, "", 0), func(string) {
		completions++
	})

	// done fires inside Play; the scheduler must not hold its lock across
	// the call.
	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 2, 300))
	s.EndOfStream("req-1", 2)

	scheduled, played := s.Stats()
	if scheduled != 2 || played != 2 {
		t.Errorf("scheduled/played = %d/%d, want 2/2", scheduled, played)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
}

func TestGaplessScheduling(t *testing.T) {
	s, _, out := newTestScheduler(nil)

	// Three chunks of 0.5s, 0.3s and 0.4s all arrive immediately. They must
	// be scheduled back to back: 0.0, 0.5, 0.8.
	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 2, 300))
	s.Enqueue(chunkOf("req-1", 3, 400))

	want := []time.Duration{0, 500 * time.Millisecond, 800 * time.Millisecond}
	got := out.starts()
	if len(got) != len(want) {
		t.Fatalf("scheduled %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d start = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestSlowProducerLeavesGapNotOverlap(t *testing.T) {
	s, clock, out := newTestScheduler(nil)

	s.Enqueue(chunkOf("req-1", 1, 500))

	// The next chunk arrives after playback already drained at 0.5s.
	clock.advance(900 * time.Millisecond)
	s.Enqueue(chunkOf("req-1", 2, 300))

	got := out.starts()
	if got[1] != 900*time.Millisecond {
		t.Errorf("late chunk start = %v, want 900ms (never before now)", got[1])
	}
}

func TestOutOfOrderChunksAreReordered(t *testing.T) {
	s, _, out := newTestScheduler(nil)

	s.Enqueue(chunkOf("req-1", 2, 300))
	if len(out.starts()) != 0 {
		t.Fatal("chunk 2 must be held until chunk 1 arrives")
	}

	s.Enqueue(chunkOf("req-1", 3, 400))
	s.Enqueue(chunkOf("req-1", 1, 500))

	want := []time.Duration{0, 500 * time.Millisecond, 800 * time.Millisecond}
	got := out.starts()
	if len(got) != 3 {
		t.Fatalf("scheduled %d chunks, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d start = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestDuplicateChunksDropped(t *testing.T) {
	s, _, out := newTestScheduler(nil)

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 2, 300))
	s.Enqueue(chunkOf("req-1", 1, 500))

	if got := len(out.starts()); got != 2 {
		t.Errorf("scheduled %d chunks, want 2 (duplicates dropped)", got)
	}
}

func TestCompletionFiresOncePerRequest(t *testing.T) {
	var mu sync.Mutex
	var completed []string
	s, _, out := newTestScheduler(func(id string) {
		mu.Lock()
		completed = append(completed, id)
		mu.Unlock()
	})

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 2, 300))

	// End-of-stream alone is not completion; the audio has not finished
	// playing yet.
	s.EndOfStream("req-1", 2)
	mu.Lock()
	n := len(completed)
	mu.Unlock()
	if n != 0 {
		t.Fatal("completion fired before playback finished")
	}

	out.finishAll()
	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 1 || completed[0] != "req-1" {
		t.Errorf("completed = %v, want exactly [req-1]", completed)
	}
}

func TestCompletionWaitsForHeldChunks(t *testing.T) {
	fired := false
	s, _, out := newTestScheduler(func(string) { fired = true })

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 3, 400)) // held, chunk 2 missing
	s.EndOfStream("req-1", 3)
	out.finishAll()

	if fired {
		t.Fatal("completion fired while a chunk was still held")
	}

	s.Enqueue(chunkOf("req-1", 2, 300))
	out.finishAll()
	if !fired {
		t.Error("completion should fire after the gap is filled and played")
	}
}

func TestNewRequestResetsSchedule(t *testing.T) {
	s, clock, out := newTestScheduler(nil)

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-1", 2, 300))
	clock.advance(100 * time.Millisecond)

	// Chunk 1 of a different request starts a fresh timeline.
	s.Enqueue(chunkOf("req-2", 1, 200))

	got := out.starts()
	if len(got) != 3 {
		t.Fatalf("scheduled %d chunks, want 3", len(got))
	}
	if got[2] != 100*time.Millisecond {
		t.Errorf("new request first chunk start = %v, want now (100ms)", got[2])
	}
}

func TestStaleChunksDroppedAfterNewRequest(t *testing.T) {
	s, _, out := newTestScheduler(nil)

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Enqueue(chunkOf("req-2", 1, 200))

	// A straggler from the superseded request must not be scheduled.
	s.Enqueue(chunkOf("req-1", 2, 300))

	if got := len(out.starts()); got != 2 {
		t.Errorf("scheduled %d chunks, want 2 (stale chunk dropped)", got)
	}
}

func TestDiscardStopsFurtherScheduling(t *testing.T) {
	fired := false
	s, _, out := newTestScheduler(func(string) { fired = true })

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.Discard("req-1")

	s.Enqueue(chunkOf("req-1", 2, 300))
	s.EndOfStream("req-1", 2)
	out.finishAll()

	if got := len(out.starts()); got != 0 {
		t.Errorf("%d chunks scheduled after discard, want 0", got)
	}
	if fired {
		t.Error("completion must not fire for a discarded request")
	}
	if scheduled, played := s.Stats(); scheduled != 0 || played != 0 {
		t.Errorf("Stats after discard = (%d,%d), want (0,0)", scheduled, played)
	}
}

func TestEndOfStreamForOtherRequestIgnored(t *testing.T) {
	fired := false
	s, _, out := newTestScheduler(func(string) { fired = true })

	s.Enqueue(chunkOf("req-1", 1, 500))
	s.EndOfStream("req-0", 1)
	out.finishAll()

	if fired {
		t.Error("audio_end for another request must not complete this one")
	}
}
