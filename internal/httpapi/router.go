package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/conrumbo/conrumbo/internal/guide"
	"github.com/conrumbo/conrumbo/internal/notifications"
	"github.com/conrumbo/conrumbo/internal/outcall"
	"github.com/conrumbo/conrumbo/internal/protocol"
	"github.com/conrumbo/conrumbo/internal/stt"
	"github.com/getsentry/sentry-go"
)

type RouterConfig struct {
	// Deepgram speech-to-text
	DeepgramAPIKey   string
	DeepgramLanguage string
	DeepgramModel    string

	// Twilio outbound calls
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioCallerID   string
	TwilioTwiMLURL   string

	// Notifications
	DiscordWebhookURL string

	// Upload limits
	MaxAudioBytes int64
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	catalog  *protocol.Catalog
	engine   *guide.Engine
	events   *eventlog.Logger
	stt      stt.Transcriber
	calls    *outcall.Twilio
	discord  *notifications.Discord
	sessions *SessionRegistry
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, catalog *protocol.Catalog,
	engine *guide.Engine, events *eventlog.Logger, transcriber stt.Transcriber,
	calls *outcall.Twilio, live *SessionRegistry) http.Handler {

	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = 10 * 1024 * 1024 // 10MB default audio upload cap
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		engine:   engine,
		events:   events,
		stt:      transcriber,
		calls:    calls,
		discord:  notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		sessions: live,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /api/health", r.handleHealth)

	// Guidance endpoints
	r.mux.HandleFunc("POST /api/understand", r.handleUnderstand)
	r.mux.HandleFunc("POST /api/turn", r.handleTurn)
	r.mux.HandleFunc("POST /api/next_step", r.handleNextStep)
	r.mux.HandleFunc("POST /api/protocol", r.handleProtocol)
	r.mux.HandleFunc("POST /api/feedback", r.handleFeedback)
	r.mux.HandleFunc("POST /api/session", r.handleNewSession)

	// Speech-to-text
	r.mux.HandleFunc("POST /api/stt", r.handleTranscribe)
	r.mux.HandleFunc("GET /api/stt/live", r.handleLiveSTT)

	// Outbound emergency callback
	r.mux.HandleFunc("POST /api/call", r.handlePlaceCall)
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
