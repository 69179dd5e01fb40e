package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/conrumbo/conrumbo/internal/guide"
	"github.com/conrumbo/conrumbo/internal/nlp"
	"github.com/google/uuid"
)

// sessionRequest carries the session id under either of the accepted keys.
type sessionRequest struct {
	SessionID    string `json:"session_id"`
	SessionIDAlt string `json:"sessionId"`
}

func (s sessionRequest) resolve() string {
	if s.SessionID != "" {
		return guide.ResolveSessionID(s.SessionID)
	}
	return guide.ResolveSessionID(s.SessionIDAlt)
}

// contextPayload is the caller-supplied conversational context. A missing
// step_index means "nothing delivered yet".
type contextPayload struct {
	ProtocolID string               `json:"protocol_id"`
	StepIndex  *int                 `json:"step_index"`
	History    []guide.HistoryEntry `json:"history"`
}

func (c *contextPayload) toContext() *guide.Context {
	if c == nil {
		return nil
	}
	idx := -1
	if c.StepIndex != nil {
		idx = *c.StepIndex
	}
	return &guide.Context{ProtocolID: c.ProtocolID, StepIndex: idx, History: c.History}
}

// handleUnderstand classifies an utterance and commits the session
// bookkeeping without delivering a step.
func (r *Router) handleUnderstand(w http.ResponseWriter, req *http.Request) {
	t0 := time.Now()

	var body struct {
		sessionRequest
		Text      string `json:"text"`
		Utterance string `json:"utterance"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body) // tolerate empty/invalid bodies

	utterance := body.Text
	if utterance == "" {
		utterance = body.Utterance
	}
	sessionID := body.resolve()

	cls, ctx := r.engine.Understand(sessionID, utterance)

	r.events.LogAsync(eventlog.Record{
		Event:      eventlog.EventUnderstand,
		SessionID:  sessionID,
		UserText:   utterance,
		Intent:     string(cls.Intent),
		Confidence: eventlog.Float(cls.Confidence),
		LatencyMS:  time.Since(t0).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"intent":     cls.Intent,
		"confidence": round3(cls.Confidence),
		"context":    ctx,
		"session_id": sessionID,
	})
}

// handleTurn runs a full new-utterance turn: classification plus the next
// step of the resolved protocol in one request.
func (r *Router) handleTurn(w http.ResponseWriter, req *http.Request) {
	t0 := time.Now()

	var body struct {
		sessionRequest
		Text      string `json:"text"`
		Utterance string `json:"utterance"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	utterance := body.Text
	if utterance == "" {
		utterance = body.Utterance
	}
	sessionID := body.resolve()

	cls, step, err := r.engine.Turn(sessionID, utterance)
	if err != nil {
		if errors.Is(err, guide.ErrProtocolNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "protocol_not_found"})
			return
		}
		captureError(req, err, "turn failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "turn failed"})
		return
	}

	r.events.LogAsync(eventlog.Record{
		Event:      eventlog.EventTurn,
		SessionID:  sessionID,
		UserText:   utterance,
		Intent:     string(cls.Intent),
		Confidence: eventlog.Float(cls.Confidence),
		ProtocolID: step.Context.ProtocolID,
		StepIndex:  eventlog.Int(step.Context.StepIndex),
		LatencyMS:  time.Since(t0).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"intent":      cls.Intent,
		"confidence":  round3(cls.Confidence),
		"step_text":   step.StepText,
		"step_number": step.StepNumber,
		"total_steps": step.TotalSteps,
		"done":        step.Done,
		"title":       step.Title,
		"context":     step.Context,
		"session_id":  sessionID,
	})
}

// handleNextStep advances a session one step. A context in the request body
// wins over server-held state; otherwise the stored session advances.
func (r *Router) handleNextStep(w http.ResponseWriter, req *http.Request) {
	t0 := time.Now()

	var body struct {
		sessionRequest
		Intent  string          `json:"intent"`
		Context *contextPayload `json:"context"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	sessionID := body.resolve()

	step, err := r.engine.Advance(sessionID, body.Context.toContext(), nlp.Intent(body.Intent))
	if err != nil {
		if errors.Is(err, guide.ErrProtocolNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "protocol_not_found"})
			return
		}
		captureError(req, err, "next_step failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "next_step failed"})
		return
	}

	r.events.LogAsync(eventlog.Record{
		Event:      eventlog.EventNextStep,
		SessionID:  sessionID,
		ProtocolID: step.Context.ProtocolID,
		StepIndex:  eventlog.Int(step.Context.StepIndex),
		LatencyMS:  time.Since(t0).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"step_text":   step.StepText,
		"step_number": step.StepNumber,
		"total_steps": step.TotalSteps,
		"done":        step.Done,
		"title":       step.Title,
		"context":     step.Context,
		"session_id":  sessionID,
	})
}

// handleProtocol returns a full protocol by id.
func (r *Router) handleProtocol(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ProtocolID string `json:"protocol_id"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	proto, ok := r.catalog.Get(body.ProtocolID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "protocol_not_found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title": proto.Title,
		"steps": proto.Steps,
	})
}

// handleFeedback records free-form caller feedback.
func (r *Router) handleFeedback(w http.ResponseWriter, req *http.Request) {
	var body struct {
		sessionRequest
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	sessionID := body.resolve()

	r.events.LogAsync(eventlog.Record{
		Event:     eventlog.EventFeedback,
		SessionID: sessionID,
		UserText:  body.Notes,
	})
	// Background context: the webhook outlives this request.
	r.discord.NotifyFeedback(context.Background(), sessionID, body.Notes)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleNewSession issues a fresh opaque session id for clients that want
// one instead of colliding into the shared anonymous session.
func (r *Router) handleNewSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session_id": uuid.NewString()})
}

// round3 matches the wire precision of confidence values.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
