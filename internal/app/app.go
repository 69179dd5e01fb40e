package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/conrumbo/conrumbo/internal/eventlog"
	"github.com/conrumbo/conrumbo/internal/guide"
	"github.com/conrumbo/conrumbo/internal/httpapi"
	"github.com/conrumbo/conrumbo/internal/outcall"
	"github.com/conrumbo/conrumbo/internal/protocol"
	"github.com/conrumbo/conrumbo/internal/stt"
	"github.com/jackc/pgx/v5/pgxpool"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	catalog  *protocol.Catalog
	engine   *guide.Engine
	eventLog *eventlog.Logger
	csvSink  *eventlog.CSVSink
	stt      stt.Transcriber
	calls    *outcall.Twilio
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	catalog, err := protocol.Load(cfg.ProtocolsPath)
	if err != nil {
		return nil, fmt.Errorf("load protocol catalog: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		engine:  guide.NewEngine(catalog),
	}

	// Event sink: Postgres when configured, local CSV otherwise.
	var sink eventlog.Sink
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect event database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping event database: %w", err)
		}
		a.db = db
		sink = eventlog.NewPGSink(db)
	} else {
		csv, err := eventlog.NewCSVSink(cfg.MetricsCSVPath)
		if err != nil {
			return nil, fmt.Errorf("open metrics csv: %w", err)
		}
		a.csvSink = csv
		sink = csv
	}
	a.eventLog = eventlog.New(sink, logger)

	if cfg.DeepgramAPIKey != "" {
		a.stt = stt.NewClient(stt.Config{
			APIKey:   cfg.DeepgramAPIKey,
			Language: cfg.DeepgramLanguage,
			Model:    cfg.DeepgramModel,
		}, nil)
	}

	a.calls = outcall.NewTwilio(outcall.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		CallerID:   cfg.TwilioCallerID,
		TwiMLURL:   cfg.TwilioTwiMLURL,
	}, logger)

	logger.Printf("app: catalog loaded with %d protocols from %s", catalog.Len(), cfg.ProtocolsPath)
	return a, nil
}

func (a *App) Router(live *httpapi.SessionRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		DeepgramAPIKey:    a.cfg.DeepgramAPIKey,
		DeepgramLanguage:  a.cfg.DeepgramLanguage,
		DeepgramModel:     a.cfg.DeepgramModel,
		TwilioAccountSID:  a.cfg.TwilioAccountSID,
		TwilioAuthToken:   a.cfg.TwilioAuthToken,
		TwilioCallerID:    a.cfg.TwilioCallerID,
		TwilioTwiMLURL:    a.cfg.TwilioTwiMLURL,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
		MaxAudioBytes:     a.cfg.MaxAudioBytes,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.catalog, a.engine,
		a.eventLog, a.stt, a.calls, live)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	if a.csvSink != nil {
		return a.csvSink.Close()
	}
	return nil
}
