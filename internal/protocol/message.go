// Package protocol defines the wire envelope and typed payloads carried over
// the speech and text WebSocket channels.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types recognized on either channel. Unknown types are ignored by
// receivers, not treated as protocol errors.
const (
	// client -> server
	TypePCM               = "pcm"
	TypeTextPrompt        = "text_prompt"
	TypeVoiceSelection    = "voice_selection"
	TypeStopRecording     = "stop_recording"
	TypeStopTranscription = "stop_transcription"

	// server -> client
	TypeTranscription      = "transcription"
	TypeTranscriptionError = "transcription_error"
	TypeAudio              = "audio"
	TypeAudioChunk         = "audio_chunk" // legacy alias for TypeAudio
	TypeAudioEnd           = "audio_end"
	TypeAudioError         = "audio_error"
)

// Message is the wire envelope: a type tag, an optional payload and an
// optional correlation id (the request id for audio messages).
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// NewMessage builds an envelope with the payload marshaled into Data.
func NewMessage(typ string, payload any, id string) (Message, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		data = b
	}
	return Message{Type: typ, Data: data, ID: id}, nil
}

// Parse decodes a raw frame into an envelope.
func Parse(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("malformed message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("message missing type")
	}
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// PCMFrame is one microphone capture frame.
type PCMFrame struct {
	Samples    []int16 `json:"samples"`
	SampleRate int     `json:"sample_rate"`
}

// TextPrompt asks the assistant to answer a typed prompt.
type TextPrompt struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// VoiceSelection switches the synthesis voice for the session.
type VoiceSelection struct {
	Voice string `json:"voice"`
}

// Stop ends recording or transcription, optionally with a reason.
type Stop struct {
	Reason string `json:"reason,omitempty"`
}

// Transcription is the recognition result for a completed utterance.
type Transcription struct {
	Transcription string  `json:"transcription"`
	Confidence    float64 `json:"confidence"`
	LanguageCode  string  `json:"language_code"`
	Status        string  `json:"status"`
}

// TranscriptionError reports a recognition failure.
type TranscriptionError struct {
	Error string `json:"error"`
}

// AudioPayload is the payload of an audio/audio_chunk message. Samples are
// sent under "data"; older producers used "chunk", so receivers must accept
// either. A fragment of the generated text may ride along as llm_response.
type AudioPayload struct {
	Data        []int16 `json:"data,omitempty"`
	Chunk       []int16 `json:"chunk,omitempty"` // legacy key
	ChunkNumber int     `json:"chunk_number"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Status      string  `json:"status,omitempty"`
	ID          string  `json:"id,omitempty"`
	LLMResponse string  `json:"llm_response,omitempty"`
}

// Samples returns the audio samples regardless of which key carried them.
func (p AudioPayload) Samples() []int16 {
	if len(p.Data) > 0 {
		return p.Data
	}
	return p.Chunk
}

// AudioEnd signals that no further chunks will be sent for the request.
type AudioEnd struct {
	TotalChunks int    `json:"total_chunks"`
	Status      string `json:"status"`
}

// AudioError reports a pipeline failure scoped to the current request.
type AudioError struct {
	Error string `json:"error"`
}

// AudioChunk is one unit of synthesized audio, ordered within its request.
// ChunkNumber starts at 1 and is strictly increasing per request.
type AudioChunk struct {
	RequestID   string
	ChunkNumber int
	Samples     []int16
	SampleRate  int
	Text        string // generated text fragment this chunk speaks
}

// Duration is the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}
