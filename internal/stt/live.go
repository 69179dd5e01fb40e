package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultLiveURL = "wss://api.deepgram.com/v1/listen"

// LiveConfig holds the settings for a streaming transcription session.
type LiveConfig struct {
	APIKey     string
	Language   string // e.g. "es"
	Model      string // e.g. "nova-2"
	SampleRate int    // e.g. 16000 for browser PCM
	Encoding   string // e.g. "linear16"
	Channels   int    // 1 for mono
	Punctuate  bool

	// BaseURL overrides the Deepgram websocket endpoint for tests.
	BaseURL string
}

// LiveClient is a streaming STT session over Deepgram's websocket API.
type LiveClient struct {
	conn      *websocket.Conn
	results   chan Result
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// liveResponse is the relevant slice of a Deepgram streaming message.
type liveResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// NewLiveClient opens a streaming session with Deepgram.
func NewLiveClient(ctx context.Context, cfg LiveConfig) (*LiveClient, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultLiveURL
	}
	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t",
		base, cfg.Model, cfg.Language, cfg.Encoding, cfg.SampleRate, cfg.Channels, cfg.Punctuate)

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	c := &LiveClient{
		conn:    conn,
		results: make(chan Result, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// StreamAudio forwards a chunk of audio to Deepgram.
func (c *LiveClient) StreamAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	default:
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Results returns the channel delivering transcription results.
func (c *LiveClient) Results() <-chan Result {
	return c.results
}

// Errors returns the channel delivering stream errors.
func (c *LiveClient) Errors() <-chan error {
	return c.errors
}

// Close shuts down the session. Safe to call more than once.
func (c *LiveClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
		c.mu.Unlock()

		err = c.conn.Close()

		// readLoop must finish before the channels close.
		c.wg.Wait()
		close(c.results)
		close(c.errors)
	})
	return err
}

// readLoop pumps Deepgram messages into the results channel.
func (c *LiveClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case c.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var resp liveResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" {
			continue
		}

		var result Result
		result.Final = resp.IsFinal
		if len(resp.Channel.Alternatives) > 0 {
			alt := resp.Channel.Alternatives[0]
			result.Text = alt.Transcript
			result.Confidence = alt.Confidence
		}

		// Interim results with no text carry no signal.
		if result.Text == "" && !result.Final {
			continue
		}

		select {
		case <-c.done:
			return
		case c.results <- result:
		}
	}
}
