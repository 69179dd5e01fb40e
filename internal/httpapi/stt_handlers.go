package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/conrumbo/conrumbo/internal/guide"
	"github.com/conrumbo/conrumbo/internal/stt"
	"github.com/gorilla/websocket"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin; the API is already CORS-open.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleTranscribe accepts an uploaded audio clip (raw body or multipart
// "audio" field) and returns the Deepgram transcript.
func (r *Router) handleTranscribe(w http.ResponseWriter, req *http.Request) {
	t0 := time.Now()

	if r.stt == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stt_not_configured"})
		return
	}

	sessionID := guide.ResolveSessionID(req.URL.Query().Get("session_id"))

	audio, contentType, err := readAudio(w, req, r.cfg.MaxAudioBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
		return
	}
	if len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty audio upload"})
		return
	}

	result, err := r.stt.Transcribe(req.Context(), audio, contentType)
	if err != nil {
		r.logger.Printf("stt: transcription failed: %v", err)
		captureError(req, err, "transcription failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "transcription failed"})
		return
	}

	r.events.LogAsync(eventlog.Record{
		Event:      eventlog.EventSTTTranscribe,
		SessionID:  sessionID,
		UserText:   result.Text,
		Confidence: eventlog.Float(result.Confidence),
		LatencyMS:  time.Since(t0).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"text":       result.Text,
		"confidence": round3(result.Confidence),
	})
}

// readAudio extracts the audio bytes from a raw or multipart upload.
func readAudio(w http.ResponseWriter, req *http.Request, limit int64) ([]byte, string, error) {
	req.Body = http.MaxBytesReader(w, req.Body, limit)

	contentType := req.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := req.FormFile("audio")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// liveMessage is one JSON frame sent to a live guidance client.
type liveMessage struct {
	Type       string  `json:"type"` // "transcript", "classification" or "error"
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	ProtocolID string  `json:"protocol_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// handleLiveSTT relays browser audio frames to Deepgram and streams
// transcripts back. Final transcripts are also classified so the client can
// show the matched emergency while the caller is still speaking.
func (r *Router) handleLiveSTT(w http.ResponseWriter, req *http.Request) {
	if r.cfg.DeepgramAPIKey == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stt_not_configured"})
		return
	}
	if !r.sessions.Add() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting_down"})
		return
	}
	defer r.sessions.Done()

	sessionID := guide.ResolveSessionID(req.URL.Query().Get("session_id"))

	conn, err := liveUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stt live: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	live, err := stt.NewLiveClient(req.Context(), stt.LiveConfig{
		APIKey:     r.cfg.DeepgramAPIKey,
		Language:   r.cfg.DeepgramLanguage,
		Model:      r.cfg.DeepgramModel,
		SampleRate: 16000,
		Encoding:   "linear16",
		Channels:   1,
		Punctuate:  true,
	})
	if err != nil {
		r.logger.Printf("stt live: deepgram connect failed: %v", err)
		captureError(req, err, "deepgram connect failed")
		_ = conn.WriteJSON(liveMessage{Type: "error", Error: "stt_unavailable"})
		return
	}
	defer live.Close()

	// Pump transcripts back to the browser.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case result, ok := <-live.Results():
				if !ok {
					return
				}
				if err := conn.WriteJSON(liveMessage{
					Type:       "transcript",
					Text:       result.Text,
					Confidence: round3(result.Confidence),
					Final:      result.Final,
				}); err != nil {
					return
				}
				if result.Final && result.Text != "" {
					cls, ctx := r.engine.Understand(sessionID, result.Text)
					_ = conn.WriteJSON(liveMessage{
						Type:       "classification",
						Intent:     string(cls.Intent),
						Confidence: round3(cls.Confidence),
						ProtocolID: ctx.ProtocolID,
					})
				}
			case err, ok := <-live.Errors():
				if !ok {
					return
				}
				r.logger.Printf("stt live: stream error: %v", err)
				_ = conn.WriteJSON(liveMessage{Type: "error", Error: "stt_stream_error"})
				return
			}
		}
	}()

	// Forward browser audio frames to Deepgram until the client goes away.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := live.StreamAudio(data); err != nil {
			r.logger.Printf("stt live: forward failed: %v", err)
			break
		}
	}

	_ = live.Close()
	<-done
}
