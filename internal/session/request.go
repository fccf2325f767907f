package session

import (
	"context"
	"sync"

	"github.com/mbeckmann/voicebot/internal/synth"
)

// State is the lifecycle state of a request.
type State int

const (
	Pending State = iota
	Retrieving
	Generating
	Synthesizing
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrieving:
		return "retrieving"
	case Generating:
		return "generating"
	case Synthesizing:
		return "synthesizing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is one prompt being answered. State changes only go through the
// named transition methods; other components read snapshots via State().
type Request struct {
	ID string

	mu         sync.Mutex
	state      State
	chunksSent int
	ttsChars   int

	seq    *synth.Sequence
	cancel context.CancelFunc
}

// State returns the current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// advance moves the request forward along
// Pending -> Retrieving -> Generating -> Synthesizing -> Completed.
// It refuses to leave a terminal state or to move backwards.
func (r *Request) advance(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Completed || r.state == Cancelled {
		return false
	}
	if to <= r.state {
		return false
	}
	r.state = to
	return true
}

// Cancel moves the request to Cancelled from any non-terminal state and stops
// its pipeline context. Safe to call repeatedly.
func (r *Request) Cancel() {
	r.mu.Lock()
	already := r.state == Completed || r.state == Cancelled
	if !already {
		r.state = Cancelled
	}
	r.mu.Unlock()

	if !already {
		r.cancel()
	}
}

// Done reports whether the request reached a terminal state.
func (r *Request) Done() bool {
	s := r.State()
	return s == Completed || s == Cancelled
}

func (r *Request) countChunk(ttsChars int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunksSent++
	r.ttsChars += ttsChars
	return r.chunksSent
}

// TTSChars returns how many characters were sent to synthesis.
func (r *Request) TTSChars() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttsChars
}

// ChunksSent returns how many chunks were emitted under this request.
func (r *Request) ChunksSent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunksSent
}
