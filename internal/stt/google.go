package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGoogleSpeechBaseURL = "https://speech.googleapis.com/v1"

// GoogleClient implements the Recognizer interface using Google Cloud Speech.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GoogleConfig holds configuration for the Google Speech client.
type GoogleConfig struct {
	APIKey     string
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
}

// NewGoogleClient creates a new Google Cloud Speech client.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleSpeechBaseURL
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

type recognizeRequest struct {
	Config struct {
		Encoding        string `json:"encoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
		LanguageCode    string `json:"languageCode"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Recognize transcribes a complete utterance of LINEAR16 samples.
func (c *GoogleClient) Recognize(ctx context.Context, samples []int16, sampleRate int, languageCode string) (Result, error) {
	if languageCode == "" {
		languageCode = "de-DE"
	}

	var req recognizeRequest
	req.Config.Encoding = "LINEAR16"
	req.Config.SampleRateHertz = sampleRate
	req.Config.LanguageCode = languageCode
	req.Audio.Content = base64.StdEncoding.EncodeToString(encodeLinear16(samples))

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/speech:recognize", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("Google Speech API error: %s - %s", resp.Status, string(respBody))
	}

	var recResp recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&recResp); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(recResp.Results) == 0 || len(recResp.Results[0].Alternatives) == 0 {
		return Result{LanguageCode: languageCode}, nil
	}

	alt := recResp.Results[0].Alternatives[0]
	return Result{
		Text:         alt.Transcript,
		Confidence:   alt.Confidence,
		LanguageCode: languageCode,
	}, nil
}

func encodeLinear16(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}
