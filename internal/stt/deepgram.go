package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultPrerecordedURL = "https://api.deepgram.com/v1/listen"

// Config holds the Deepgram settings shared by both client kinds.
type Config struct {
	APIKey   string
	Language string // e.g. "es"
	Model    string // e.g. "nova-2"

	// BaseURL overrides the Deepgram endpoint. Tests point it at a local
	// server; empty means the real API.
	BaseURL string
}

// Client transcribes complete audio clips through Deepgram's prerecorded
// API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a prerecorded transcription client. A nil httpClient
// falls back to a client with a sane timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// prerecordedResponse is the relevant slice of Deepgram's response.
type prerecordedResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends the audio clip to Deepgram and returns the first
// alternative of the first channel.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (Result, error) {
	if len(audio) == 0 {
		return Result{}, fmt.Errorf("empty audio payload")
	}

	url := fmt.Sprintf("%s?model=%s&language=%s&punctuate=true",
		c.baseURL(), c.cfg.Model, c.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("Deepgram API error: %s - %s", resp.Status, string(body))
	}

	var parsed prerecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	var result Result
	result.Final = true
	if len(parsed.Results.Channels) > 0 && len(parsed.Results.Channels[0].Alternatives) > 0 {
		alt := parsed.Results.Channels[0].Alternatives[0]
		result.Text = alt.Transcript
		result.Confidence = alt.Confidence
	}
	return result, nil
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	return defaultPrerecordedURL
}
