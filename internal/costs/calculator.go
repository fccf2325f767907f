// Package costs provides cost estimation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// SpeechCentsPerMinute is the cost per minute for Google Cloud Speech
	// synchronous recognition.
	// Default: $0.024/min = 2.4 cents/min
	SpeechCentsPerMinute = getEnvFloat("COST_SPEECH_CENTS_PER_MIN", 2.4)

	// GeminiCentsPerThousandInputChars is the cost per 1K input characters
	// for Gemini Flash generation.
	// Default: $0.0001875/1K chars = 0.01875 cents/1K chars
	GeminiCentsPerThousandInputChars = getEnvFloat("COST_GEMINI_INPUT_CENTS_PER_1K_CHARS", 0.01875)

	// GeminiCentsPerThousandOutputChars is the cost per 1K output characters
	// for Gemini Flash generation.
	// Default: $0.00075/1K chars = 0.075 cents/1K chars
	GeminiCentsPerThousandOutputChars = getEnvFloat("COST_GEMINI_OUTPUT_CENTS_PER_1K_CHARS", 0.075)

	// TTSCentsPerThousandChars is the cost per 1K characters for Google Cloud
	// TTS Chirp voices.
	// Default: $16/1M chars = 1.6 cents/1K chars
	TTSCentsPerThousandChars = getEnvFloat("COST_TTS_CENTS_PER_1K_CHARS", 1.6)
)

// RequestMetrics contains the raw usage metrics of one answered request.
type RequestMetrics struct {
	STTDurationSeconds int // Audio processed by speech recognition
	LLMInputChars      int // Prompt characters sent to the model
	LLMOutputChars     int // Generated characters received from the model
	TTSCharacters      int // Characters sent to synthesis
}

// RequestCosts contains the estimated costs of one request in cents.
type RequestCosts struct {
	STTCostCents   int
	LLMCostCents   int
	TTSCostCents   int
	TotalCostCents int
}

// CalculateRequestCosts estimates the cost of a request from its usage metrics.
func CalculateRequestCosts(m RequestMetrics) RequestCosts {
	sttMinutes := float64(m.STTDurationSeconds) / 60.0
	sttCents := sttMinutes * SpeechCentsPerMinute

	llmInputCents := (float64(m.LLMInputChars) / 1000.0) * GeminiCentsPerThousandInputChars
	llmOutputCents := (float64(m.LLMOutputChars) / 1000.0) * GeminiCentsPerThousandOutputChars
	llmCents := llmInputCents + llmOutputCents

	ttsCents := (float64(m.TTSCharacters) / 1000.0) * TTSCentsPerThousandChars

	// Round to nearest cent (stored as integers)
	c := RequestCosts{
		STTCostCents: roundToInt(sttCents),
		LLMCostCents: roundToInt(llmCents),
		TTSCostCents: roundToInt(ttsCents),
	}
	c.TotalCostCents = c.STTCostCents + c.LLMCostCents + c.TTSCostCents
	return c
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
