package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/conrumbo/conrumbo/internal/guide"
	"github.com/conrumbo/conrumbo/internal/notifications"
	"github.com/conrumbo/conrumbo/internal/protocol"
)

func testRouter() *Router {
	logger := log.New(io.Discard, "", 0)
	catalog := protocol.NewCatalog(map[string]protocol.Protocol{
		"pa_no_respira_v1": {
			Title: "Parada respiratoria",
			Steps: []string{"Comprueba la respiración.", "Inicia compresiones."},
		},
		"pa_hemorragia_v1": {
			Title: "Hemorragia",
			Steps: []string{
				"Protégete las manos.",
				"Aplica presión directa.",
				"No retires el paño.",
				"Eleva la zona.",
				"Llama al 112.",
			},
		},
		"pa_inconsciente_v1": {
			Title: "Persona inconsciente",
			Steps: []string{"Comprueba si responde.", "Llama al 112."},
		},
		"pa_atragantamiento_v1": {Title: "Atragantamiento", Steps: []string{"Anima a toser."}},
		"pa_convulsiones_v1":    {Title: "Convulsiones", Steps: []string{"Aparta objetos."}},
		"pa_quemadura_v1":       {Title: "Quemadura", Steps: []string{"Enfría con agua."}},
	})

	r := &Router{
		cfg:      RouterConfig{MaxAudioBytes: 10 * 1024 * 1024},
		logger:   logger,
		catalog:  catalog,
		engine:   guide.NewEngine(catalog),
		events:   eventlog.New(nil, logger),
		discord:  notifications.NewDiscord("", logger),
		sessions: NewSessionRegistry(),
		mux:      http.NewServeMux(),
	}
	r.routes()
	return r
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return m
}

func TestHandleUnderstand(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleUnderstand, "/api/understand",
		`{"text": "mi padre no respira", "session_id": "s1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decodeBody(t, rec)
	if resp["intent"] != "parada_respiratoria" {
		t.Errorf("intent = %v, want parada_respiratoria", resp["intent"])
	}
	if resp["confidence"] != 0.95 {
		t.Errorf("confidence = %v, want 0.95", resp["confidence"])
	}
	if resp["session_id"] != "s1" {
		t.Errorf("session_id = %v, want s1", resp["session_id"])
	}

	ctx, ok := resp["context"].(map[string]any)
	if !ok {
		t.Fatalf("context missing: %v", resp)
	}
	if ctx["protocol_id"] != "pa_no_respira_v1" {
		t.Errorf("context.protocol_id = %v", ctx["protocol_id"])
	}
	if ctx["step_index"] != float64(-1) {
		t.Errorf("context.step_index = %v, want -1", ctx["step_index"])
	}
}

func TestHandleUnderstandAnonymous(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleUnderstand, "/api/understand", `{"text": "sangra"}`)
	resp := decodeBody(t, rec)
	if resp["session_id"] != "anon" {
		t.Errorf("session_id = %v, want anon", resp["session_id"])
	}

	// The camelCase alias is accepted too.
	rec = postJSON(t, r.handleUnderstand, "/api/understand",
		`{"text": "sangra", "sessionId": "cam"}`)
	resp = decodeBody(t, rec)
	if resp["session_id"] != "cam" {
		t.Errorf("session_id = %v, want cam", resp["session_id"])
	}
}

func TestHandleTurnFullWalk(t *testing.T) {
	r := testRouter()

	for i := 1; i <= 5; i++ {
		rec := postJSON(t, r.handleTurn, "/api/turn",
			`{"text": "sangra mucho", "session_id": "s1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("turn %d status = %d", i, rec.Code)
		}
		resp := decodeBody(t, rec)
		if resp["step_number"] != float64(i) {
			t.Errorf("turn %d step_number = %v, want %d", i, resp["step_number"], i)
		}
		if resp["total_steps"] != float64(5) {
			t.Errorf("turn %d total_steps = %v", i, resp["total_steps"])
		}
		wantDone := i == 5
		if resp["done"] != wantDone {
			t.Errorf("turn %d done = %v, want %v", i, resp["done"], wantDone)
		}
		if resp["title"] != "Hemorragia" {
			t.Errorf("turn %d title = %v", i, resp["title"])
		}
	}

	// Past the end: completion message, done stays true.
	rec := postJSON(t, r.handleTurn, "/api/turn",
		`{"text": "sangra mucho", "session_id": "s1"}`)
	resp := decodeBody(t, rec)
	if resp["done"] != true {
		t.Error("completion done = false")
	}
	if !strings.Contains(resp["step_text"].(string), "completado") {
		t.Errorf("completion step_text = %v", resp["step_text"])
	}
}

func TestHandleTurnTopicSwitch(t *testing.T) {
	r := testRouter()

	postJSON(t, r.handleTurn, "/api/turn", `{"text": "sangra", "session_id": "s1"}`)
	postJSON(t, r.handleTurn, "/api/turn", `{"text": "sangra", "session_id": "s1"}`)

	rec := postJSON(t, r.handleTurn, "/api/turn",
		`{"text": "ya no respira", "session_id": "s1"}`)
	resp := decodeBody(t, rec)
	if resp["step_number"] != float64(1) {
		t.Errorf("step_number after switch = %v, want 1", resp["step_number"])
	}
	if resp["title"] != "Parada respiratoria" {
		t.Errorf("title after switch = %v", resp["title"])
	}
}

func TestHandleNextStepWithServerMemory(t *testing.T) {
	r := testRouter()

	postJSON(t, r.handleUnderstand, "/api/understand",
		`{"text": "no respira", "session_id": "s1"}`)

	rec := postJSON(t, r.handleNextStep, "/api/next_step", `{"session_id": "s1"}`)
	resp := decodeBody(t, rec)
	if resp["step_number"] != float64(1) {
		t.Errorf("step_number = %v, want 1", resp["step_number"])
	}
	if resp["step_text"] != "Comprueba la respiración." {
		t.Errorf("step_text = %v", resp["step_text"])
	}
	if resp["done"] != false {
		t.Errorf("done = %v, want false", resp["done"])
	}
}

func TestHandleNextStepExplicitContext(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleNextStep, "/api/next_step",
		`{"session_id": "s1", "context": {"protocol_id": "pa_inconsciente_v1", "step_index": 0}}`)
	resp := decodeBody(t, rec)
	if resp["step_number"] != float64(2) {
		t.Errorf("step_number = %v, want 2", resp["step_number"])
	}
	if resp["done"] != true {
		t.Errorf("done = %v, want true (last step)", resp["done"])
	}
	if resp["title"] != "Persona inconsciente" {
		t.Errorf("title = %v", resp["title"])
	}
}

func TestHandleNextStepMissingCursorDefaults(t *testing.T) {
	r := testRouter()

	// No step_index in the supplied context: treated as "nothing
	// delivered yet".
	rec := postJSON(t, r.handleNextStep, "/api/next_step",
		`{"context": {"protocol_id": "pa_no_respira_v1"}}`)
	resp := decodeBody(t, rec)
	if resp["step_number"] != float64(1) {
		t.Errorf("step_number = %v, want 1", resp["step_number"])
	}
}

func TestHandleNextStepIntentFallback(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleNextStep, "/api/next_step",
		`{"session_id": "s9", "intent": "quemadura"}`)
	resp := decodeBody(t, rec)
	if resp["title"] != "Quemadura" {
		t.Errorf("title = %v, want Quemadura", resp["title"])
	}
}

func TestHandleNextStepProtocolNotFound(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleNextStep, "/api/next_step",
		`{"context": {"protocol_id": "pa_fantasma_v9", "step_index": -1}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	resp := decodeBody(t, rec)
	if resp["error"] != "protocol_not_found" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestHandleProtocol(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleProtocol, "/api/protocol",
		`{"protocol_id": "pa_hemorragia_v1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["title"] != "Hemorragia" {
		t.Errorf("title = %v", resp["title"])
	}
	steps, ok := resp["steps"].([]any)
	if !ok || len(steps) != 5 {
		t.Errorf("steps = %v, want 5 entries", resp["steps"])
	}

	rec = postJSON(t, r.handleProtocol, "/api/protocol",
		`{"protocol_id": "nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleFeedback(t *testing.T) {
	r := testRouter()

	rec := postJSON(t, r.handleFeedback, "/api/feedback",
		`{"session_id": "s1", "notes": "muy útil"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["ok"] != true {
		t.Errorf("ok = %v", resp["ok"])
	}
}

func TestHandleNewSession(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	rec := httptest.NewRecorder()
	r.handleNewSession(rec, req)

	resp := decodeBody(t, rec)
	id, _ := resp["session_id"].(string)
	if len(id) != 36 {
		t.Errorf("session_id = %q, want a UUID", id)
	}

	// Two requests must not hand out the same id.
	rec2 := httptest.NewRecorder()
	r.handleNewSession(rec2, req)
	if decodeBody(t, rec2)["session_id"] == id {
		t.Error("session ids are not unique")
	}
}

func TestHandleTranscribeNotConfigured(t *testing.T) {
	r := testRouter() // no stt client wired

	req := httptest.NewRequest(http.MethodPost, "/api/stt", strings.NewReader("audio"))
	rec := httptest.NewRecorder()
	r.handleTranscribe(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandlePlaceCallValidation(t *testing.T) {
	r := testRouter() // no Twilio wired

	rec := postJSON(t, r.handlePlaceCall, "/api/call", `{"session_id": "s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing phone status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, r.handlePlaceCall, "/api/call",
		`{"phone": "+34600000000"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", rec.Code)
	}
}

func TestRouterCORSAndHealth(t *testing.T) {
	r := testRouter()
	handler := withSentryRecovery(withCORS(r.mux))

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/understand", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing CORS origin header")
		}
	})

	t.Run("health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if decodeBody(t, rec)["ok"] != true {
			t.Error("health ok != true")
		}
	})
}

func TestStatelessClientRoundTrip(t *testing.T) {
	// A stateless client carries the returned context back on every
	// request instead of relying on server memory.
	r := testRouter()

	context := `{"protocol_id": "pa_hemorragia_v1", "step_index": -1}`
	for i := 1; i <= 5; i++ {
		rec := postJSON(t, r.handleNextStep, "/api/next_step",
			fmt.Sprintf(`{"session_id": "stateless", "context": %s}`, context))
		resp := decodeBody(t, rec)
		if resp["step_number"] != float64(i) {
			t.Fatalf("round %d step_number = %v, want %d", i, resp["step_number"], i)
		}
		raw, err := json.Marshal(resp["context"])
		if err != nil {
			t.Fatal(err)
		}
		context = string(raw)
	}
}

func TestConfidenceRounding(t *testing.T) {
	r := testRouter()

	// Fuzzy confidence has long decimals; the wire value is rounded to 3.
	rec := postJSON(t, r.handleUnderstand, "/api/understand",
		`{"text": "me sangr", "session_id": "s1"}`)
	resp := decodeBody(t, rec)
	conf, ok := resp["confidence"].(float64)
	if !ok {
		t.Fatalf("confidence missing: %v", resp)
	}
	if conf != round3(conf) {
		t.Errorf("confidence %v not rounded to 3 decimals", conf)
	}
}
