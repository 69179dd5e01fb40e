package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": {
				"channels": [{
					"alternatives": [{"transcript": "no respira", "confidence": 0.91}]
				}]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:   "test-key",
		Language: "es",
		Model:    "nova-2",
		BaseURL:  server.URL,
	}, server.Client())

	result, err := client.Transcribe(context.Background(), []byte("fake-audio"), "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if result.Text != "no respira" {
		t.Errorf("Text = %q, want %q", result.Text, "no respira")
	}
	if result.Confidence != 0.91 {
		t.Errorf("Confidence = %v, want 0.91", result.Confidence)
	}
	if !result.Final {
		t.Error("Final = false, want true for prerecorded")
	}
	if gotAuth != "Token test-key" {
		t.Errorf("Authorization = %q, want Token test-key", gotAuth)
	}
	if gotContentType != "audio/webm" {
		t.Errorf("Content-Type = %q, want audio/webm", gotContentType)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, nil)
	if _, err := client.Transcribe(context.Background(), nil, ""); err == nil {
		t.Error("Transcribe(empty) error = nil, want error")
	}
}

func TestTranscribeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg": "bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL}, server.Client())
	if _, err := client.Transcribe(context.Background(), []byte("audio"), ""); err == nil {
		t.Error("Transcribe() error = nil, want API error")
	}
}

func TestTranscribeEmptyAlternatives(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": {"channels": []}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, server.Client())
	result, err := client.Transcribe(context.Background(), []byte("audio"), "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "" || result.Confidence != 0 {
		t.Errorf("result = %+v, want empty transcript", result)
	}
}
