package client

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/mbeckmann/voicebot/internal/protocol"
)

// Source delivers microphone audio. Read blocks until the frame is filled or
// the source is closed.
type Source interface {
	Read(frame []int16) error
	SampleRate() int
	Close() error
}

// FrameSender is where captured frames go; *Channel satisfies it.
type FrameSender interface {
	Send(msgType string, payload any, id string) error
}

// CaptureConfig configures the streamer.
type CaptureConfig struct {
	// Open acquires the microphone. It is called on every Start so a denied
	// permission can be retried by explicit user action.
	Open func() (Source, error)

	// FrameSize is the fixed capture frame length in samples (default 2048).
	FrameSize int

	// QueueSize bounds frames waiting for the sender (default 32). When the
	// socket cannot keep up, further frames are dropped, never buffered
	// without bound.
	QueueSize int

	Logger *log.Logger
}

// CaptureStreamer reads fixed-size frames on a dedicated goroutine and hands
// them to the sender, so capture never blocks on network I/O.
type CaptureStreamer struct {
	cfg    CaptureConfig
	sender FrameSender

	mu      sync.Mutex
	running bool
	source  Source
	queue   chan protocol.PCMFrame
	done    chan struct{}

	dropped atomic.Int64
}

// NewCaptureStreamer creates a streamer.
func NewCaptureStreamer(cfg CaptureConfig, sender FrameSender) *CaptureStreamer {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 2048
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &CaptureStreamer{cfg: cfg, sender: sender}
}

// Start begins recording. Starting while already recording is a no-op. An
// error opening the source (e.g. permission denied) is returned once and the
// streamer stays disabled until Start is called again.
func (c *CaptureStreamer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	source, err := c.cfg.Open()
	if err != nil {
		return err
	}

	c.source = source
	c.queue = make(chan protocol.PCMFrame, c.cfg.QueueSize)
	c.done = make(chan struct{})
	c.running = true

	go c.captureLoop(source, c.queue, c.done)
	go c.sendLoop(c.queue, c.done)
	return nil
}

// Stop ends recording. Stopping while not recording is a no-op.
func (c *CaptureStreamer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	close(c.done)
	_ = c.source.Close()
	c.source = nil
}

// Recording reports whether capture is active.
func (c *CaptureStreamer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Dropped returns how many frames were discarded due to backpressure.
func (c *CaptureStreamer) Dropped() int64 {
	return c.dropped.Load()
}

// captureLoop is the real-time side: it only reads frames and enqueues them,
// dropping on a full queue instead of blocking.
func (c *CaptureStreamer) captureLoop(source Source, queue chan protocol.PCMFrame, done chan struct{}) {
	rate := source.SampleRate()
	for {
		frame := make([]int16, c.cfg.FrameSize)
		if err := source.Read(frame); err != nil {
			select {
			case <-done:
			default:
				c.cfg.Logger.Printf("capture: source read failed: %v", err)
			}
			return
		}

		select {
		case <-done:
			return
		case queue <- protocol.PCMFrame{Samples: frame, SampleRate: rate}:
		default:
			n := c.dropped.Add(1)
			if n%100 == 1 {
				c.cfg.Logger.Printf("capture: dropping frames, sender cannot keep up (%d dropped)", n)
			}
		}
	}
}

func (c *CaptureStreamer) sendLoop(queue chan protocol.PCMFrame, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-queue:
			if err := c.sender.Send(protocol.TypePCM, frame, ""); err != nil {
				c.cfg.Logger.Printf("capture: failed to send frame: %v", err)
			}
		}
	}
}
