package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/google/uuid"
)

// handlePlaceCall asks Twilio to ring the caller back so a human operator
// (or an IVR script) can take over the emergency.
func (r *Router) handlePlaceCall(w http.ResponseWriter, req *http.Request) {
	t0 := time.Now()

	var body struct {
		sessionRequest
		Phone      string `json:"phone"`
		ProtocolID string `json:"protocol_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	phone := strings.TrimSpace(body.Phone)
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	if r.calls == nil || !r.calls.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "calls_not_configured"})
		return
	}

	sessionID := body.resolve()

	callSID, err := r.calls.PlaceCall(req.Context(), phone)
	if err != nil {
		r.logger.Printf("call: placement failed: %v", err)
		captureError(req, err, "call placement failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "call placement failed"})
		return
	}

	// Background context: the alert outlives this request.
	r.discord.NotifyCallPlaced(context.Background(), sessionID, callSID, body.ProtocolID)

	r.events.LogAsync(eventlog.Record{
		Event:      eventlog.EventCallPlaced,
		SessionID:  sessionID,
		UserText:   phone,
		ProtocolID: body.ProtocolID,
		LatencyMS:  time.Since(t0).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"queued":    true,
		"call_sid":  callSID,
		"reference": uuid.NewString(),
	})
}
