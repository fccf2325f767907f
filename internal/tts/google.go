package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGoogleTTSBaseURL = "https://texttospeech.googleapis.com/v1"

// sampleRate is the synthesis output rate. 24kHz LINEAR16 matches what the
// playback side expects.
const sampleRate = 24000

// GoogleClient implements the Client interface using Google Cloud TTS.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GoogleConfig holds configuration for the Google TTS client.
type GoogleConfig struct {
	APIKey     string
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
}

// NewGoogleClient creates a new Google Cloud TTS client.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleTTSBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		Name         string `json:"name"`
		LanguageCode string `json:"languageCode"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts text to speech and returns LINEAR16 samples at 24kHz.
func (c *GoogleClient) Synthesize(ctx context.Context, text, voice string) ([]int16, int, error) {
	url := fmt.Sprintf("%s/text:synthesize", c.baseURL)

	var req synthesizeRequest
	req.Input.Text = text
	req.Voice.Name = voice
	req.Voice.LanguageCode = languageCodeOf(voice)
	req.AudioConfig.AudioEncoding = "LINEAR16"
	req.AudioConfig.SampleRateHertz = sampleRate

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("Google TTS API error: %s - %s", resp.Status, string(respBody))
	}

	var synthResp synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&synthResp); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(synthResp.AudioContent)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode audio content: %w", err)
	}

	return decodeLinear16(audio), sampleRate, nil
}

// decodeLinear16 converts little-endian PCM bytes to samples, skipping the
// WAV header the API prepends to LINEAR16 responses.
func decodeLinear16(audio []byte) []int16 {
	if len(audio) >= 44 && bytes.HasPrefix(audio, []byte("RIFF")) {
		audio = audio[44:]
	}
	samples := make([]int16, len(audio)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(audio[2*i:]))
	}
	return samples
}

// languageCodeOf derives the language code from a fully-qualified voice name,
// e.g. "de-DE-Chirp3-HD-Charon" -> "de-DE".
func languageCodeOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "de-DE"
}
