// Package server exposes the categorization pipeline over HTTP: synchronous
// ingestion and taxonomy endpoints, polled background classification, and a
// server-sent-events stream for sync progress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/events"
	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/Veraticus/shopsort/internal/shopify"
	"github.com/Veraticus/shopsort/internal/storage"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/Veraticus/shopsort/internal/task"
	"github.com/Veraticus/shopsort/internal/taxonomy"
)

// sessionCookie names the cookie carrying the opaque session ID.
const sessionCookie = "shopsort_session"

// Source is the product ingestion slice of the storefront API.
type Source interface {
	FetchProducts(ctx context.Context, tag string) ([]model.Product, error)
}

// SourceFactory builds a Source for one store's credentials.
type SourceFactory func(shopURL, accessToken string) (Source, error)

// SinkFactory builds a sync target for one store's credentials.
type SinkFactory func(shopURL, accessToken string) (syncer.Sink, error)

// DefaultSourceFactory returns the live storefront client as a Source.
func DefaultSourceFactory(shopURL, accessToken string) (Source, error) {
	return shopify.NewClient(shopify.Config{ShopURL: shopURL, AccessToken: accessToken})
}

// DefaultSinkFactory returns the live storefront client as a sync target.
func DefaultSinkFactory(shopURL, accessToken string) (syncer.Sink, error) {
	return shopify.NewClient(shopify.Config{ShopURL: shopURL, AccessToken: accessToken})
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Taxonomy        taxonomy.Config
	Engine          engine.Config
	Sync            syncer.Config
}

// Deps are the collaborators the server coordinates. NewSource and NewSink
// default to the live storefront client when nil.
type Deps struct {
	Sessions  storage.SessionStore
	Tasks     *task.Registry
	Broker    *events.Broker
	LLM       llm.Client
	NewSource SourceFactory
	NewSink   SinkFactory
}

// Server is the HTTP front end of the pipeline.
type Server struct {
	logger     *slog.Logger
	sessions   storage.SessionStore
	tasks      *task.Registry
	broker     *events.Broker
	llm        llm.Client
	newSource  SourceFactory
	newSink    SinkFactory
	httpServer *http.Server
	cfg        Config
}

// New assembles a Server. Zero-valued config sections fall back to defaults.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("%w: session store is required", common.ErrMissingConfig)
	}
	if deps.Tasks == nil {
		return nil, fmt.Errorf("%w: task registry is required", common.ErrMissingConfig)
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("%w: event broker is required", common.ErrMissingConfig)
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("%w: LLM client is required", common.ErrMissingConfig)
	}
	if deps.NewSource == nil {
		deps.NewSource = DefaultSourceFactory
	}
	if deps.NewSink == nil {
		deps.NewSink = DefaultSinkFactory
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Engine == (engine.Config{}) {
		cfg.Engine = engine.DefaultConfig()
	}
	if cfg.Sync == (syncer.Config{}) {
		cfg.Sync = syncer.DefaultConfig()
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		tasks:     deps.Tasks,
		broker:    deps.Broker,
		llm:       deps.LLM,
		newSource: deps.NewSource,
		newSink:   deps.NewSink,
		logger:    slog.Default().With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/fetch-products", s.handleFetchProducts)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/taxonomy", s.handleTaxonomy)
	mux.HandleFunc("POST /api/classify", s.handleClassify)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/sync/stream", s.handleSyncStream)
	return mux
}

// Start serves until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
