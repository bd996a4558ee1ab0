package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-journal/internal/adapters/textsplit"
	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

const defaultBaseURL = "https://texttospeech.googleapis.com/v1"

// Client синтезирует речь через Google Cloud Text-to-Speech REST API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ domain.SpeechSynthesizer = (*Client)(nil)

// NewClient создаёт клиента TTS.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
		SSMLGender   string `json:"ssmlGender,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
		Pitch         float64 `json:"pitch,omitempty"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize возвращает MP3. Длинный текст синтезируется кусками, MP3-кадры склеиваются.
func (c *Client) Synthesize(ctx context.Context, text string, voice domain.Voice) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("googletts: api key is empty")
	}
	chunks := textsplit.Split(text, textsplit.SpeechLimit)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("googletts: %w: пустой текст", domain.ErrInvalidInput)
	}
	var audio bytes.Buffer
	for i, chunk := range chunks {
		part, err := c.synthesizeChunk(ctx, chunk, voice)
		if err != nil {
			return nil, fmt.Errorf("googletts: кусок %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(part)
	}
	return audio.Bytes(), nil
}

func (c *Client) synthesizeChunk(ctx context.Context, text string, voice domain.Voice) ([]byte, error) {
	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = voice.LanguageCode
	payload.Voice.Name = voice.Name
	payload.Voice.SSMLGender = voice.Gender
	payload.AudioConfig.AudioEncoding = "MP3"
	payload.AudioConfig.SpeakingRate = voice.SpeakingRate
	payload.AudioConfig.Pitch = voice.Pitch

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/text:synthesize?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	audio, err := c.do(req)
	metrics.ObserveNetworkRequest("googletts", "synthesize", voice.Name, start, err)
	return audio, err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("tts api: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("tts api: unexpected status %d", resp.StatusCode)
	}
	var decoded synthesizeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return audio, nil
}
