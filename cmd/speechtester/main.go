// Command speechtester exercises the text WebSocket channel end to end: it
// submits a prompt, schedules the streamed audio chunks on a simulated output
// and prints the playback timeline instead of playing the samples.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mbeckmann/voicebot/internal/client"
	"github.com/mbeckmann/voicebot/internal/protocol"
)

// printOutput is a playback device that just reports the schedule. Each Play
// call sleeps until its start time relative to the shared clock, prints the
// chunk and signals completion after the chunk's duration.
type printOutput struct {
	clock client.Clock
}

func (o *printOutput) Play(samples []int16, sampleRate int, at time.Duration, done func()) {
	go func() {
		if wait := at - o.clock.Now(); wait > 0 {
			time.Sleep(wait)
		}
		dur := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
		fmt.Printf("  [%8.3fs] playing %6d samples @ %d Hz (%.3fs)\n",
			o.clock.Now().Seconds(), len(samples), sampleRate, dur.Seconds())
		time.Sleep(dur)
		done()
	}()
}

func main() {
	url := flag.String("url", "ws://localhost:8000/ws/text", "text channel URL")
	prompt := flag.String("prompt", "Hallo, wer bist du?", "prompt to submit")
	voice := flag.String("voice", "", "synthesis voice (server default when empty)")
	timeout := flag.Duration("timeout", 60*time.Second, "time to wait for the full response")
	flag.Parse()

	logger := log.New(os.Stderr, "speechtester: ", log.LstdFlags)

	clock := client.NewSystemClock()
	finished := make(chan string, 1)
	scheduler := client.NewPlaybackScheduler(clock, &printOutput{clock: clock}, logger, func(requestID string) {
		finished <- requestID
	})

	disconnected := make(chan error, 1)
	ch := client.NewChannel(client.ChannelConfig{
		URL:    *url,
		Logger: logger,
		OnDisconnect: func(err error) {
			disconnected <- err
		},
	})

	ch.On(protocol.TypeAudio, handleAudio(scheduler, logger))
	ch.On(protocol.TypeAudioChunk, handleAudio(scheduler, logger))
	ch.On(protocol.TypeAudioEnd, func(msg protocol.Message) {
		var end protocol.AudioEnd
		if err := msg.Decode(&end); err != nil {
			logger.Printf("bad audio_end: %v", err)
			return
		}
		fmt.Printf("  stream ended: %d chunks, status %q\n", end.TotalChunks, end.Status)
		scheduler.EndOfStream(msg.ID, end.TotalChunks)
	})
	ch.On(protocol.TypeAudioError, func(msg protocol.Message) {
		var audioErr protocol.AudioError
		_ = msg.Decode(&audioErr)
		logger.Printf("request %s failed: %s", msg.ID, audioErr.Error)
		scheduler.Discard(msg.ID)
		finished <- msg.ID
	})

	if err := ch.Connect(); err != nil {
		logger.Fatalf("connect %s: %v", *url, err)
	}
	defer ch.Close()

	fmt.Printf("prompt: %q\n", *prompt)
	if err := ch.Send(protocol.TypeTextPrompt, protocol.TextPrompt{Text: *prompt, Voice: *voice}, ""); err != nil {
		logger.Fatalf("send prompt: %v", err)
	}

	select {
	case id := <-finished:
		scheduled, played := scheduler.Stats()
		fmt.Printf("request %s done: %d/%d chunks played in %.3fs\n",
			id, played, scheduled, clock.Now().Seconds())
	case err := <-disconnected:
		logger.Fatalf("connection lost: %v", err)
	case <-time.After(*timeout):
		logger.Fatalf("timed out after %s waiting for response", *timeout)
	}
}

func handleAudio(scheduler *client.PlaybackScheduler, logger *log.Logger) client.Handler {
	return func(msg protocol.Message) {
		var payload protocol.AudioPayload
		if err := msg.Decode(&payload); err != nil {
			logger.Printf("bad audio payload: %v", err)
			return
		}
		requestID := msg.ID
		if requestID == "" {
			requestID = payload.ID
		}
		scheduler.Enqueue(protocol.AudioChunk{
			RequestID:   requestID,
			ChunkNumber: payload.ChunkNumber,
			Samples:     payload.Samples(),
			SampleRate:  payload.SampleRate,
			Text:        payload.LLMResponse,
		})
	}
}
