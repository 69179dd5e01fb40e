// Package outcall places outbound emergency callback calls through
// Twilio's REST API.
package outcall

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// Config holds the Twilio credentials and call settings.
type Config struct {
	AccountSID string
	AuthToken  string
	CallerID   string // The number calls are placed from
	TwiMLURL   string // URL Twilio fetches call instructions from

	// BaseURL overrides the Twilio endpoint for tests.
	BaseURL string
}

// Twilio places voice calls through the Twilio REST API. When not
// configured, call placement is reported as disabled rather than failing.
type Twilio struct {
	cfg    Config
	logger *log.Logger
	client *http.Client
}

// NewTwilio creates a Twilio caller.
func NewTwilio(cfg Config, logger *log.Logger) *Twilio {
	return &Twilio{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether call placement is configured.
func (t *Twilio) Enabled() bool {
	return t.cfg.AccountSID != "" && t.cfg.AuthToken != "" && t.cfg.CallerID != ""
}

// twilioCallResponse is the relevant slice of Twilio's call resource.
type twilioCallResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// PlaceCall asks Twilio to call the given number and returns the call SID.
func (t *Twilio) PlaceCall(ctx context.Context, to string) (string, error) {
	if !t.Enabled() {
		return "", fmt.Errorf("outbound calls are not configured")
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json",
		t.baseURL(), t.cfg.AccountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", t.cfg.CallerID)
	data.Set("Url", t.cfg.TwiMLURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("Twilio API error: %d - %v", resp.StatusCode, errResp)
	}

	var callResp twilioCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&callResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	t.logger.Printf("outcall: placed call %s to %s (status %s)", callResp.SID, to, callResp.Status)
	return callResp.SID, nil
}

func (t *Twilio) baseURL() string {
	if t.cfg.BaseURL != "" {
		return t.cfg.BaseURL
	}
	return defaultTwilioBaseURL
}
