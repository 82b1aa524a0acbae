package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/Veraticus/shopsort/internal/storage"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/Veraticus/shopsort/internal/taxonomy"
	"github.com/google/uuid"
)

type fetchRequest struct {
	ShopURL     string `json:"shop_url"`
	AccessToken string `json:"access_token"`
	Tag         string `json:"tag"`
}

type fetchResponse struct {
	SessionID string          `json:"session_id"`
	Count     int             `json:"count"`
	Products  []model.Product `json:"products"`
}

func (s *Server) handleFetchProducts(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", common.ErrInvalidConfig))
		return
	}
	if req.ShopURL == "" || req.AccessToken == "" || req.Tag == "" {
		writeError(w, fmt.Errorf("%w: shop_url, access_token and tag are required", common.ErrMissingConfig))
		return
	}

	source, err := s.newSource(req.ShopURL, req.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}
	products, err := source.FetchProducts(r.Context(), req.Tag)
	if err != nil {
		writeError(w, err)
		return
	}

	session := &storage.Session{
		ID:          uuid.New().String(),
		ShopURL:     req.ShopURL,
		AccessToken: req.AccessToken,
		Tag:         req.Tag,
		Products:    products,
	}
	if err := s.sessions.Save(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(storage.SessionTTL.Seconds()),
	})
	writeJSON(w, http.StatusOK, fetchResponse{
		SessionID: session.ID,
		Count:     len(products),
		Products:  products,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type taxonomyRequest struct {
	Mode     string `json:"mode"`
	SizeHint int    `json:"size_hint"`
}

type taxonomyResponse struct {
	Taxonomy  []string        `json:"taxonomy"`
	ParentMap model.ParentMap `json:"parent_map,omitempty"`
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(session.Products) == 0 {
		writeError(w, common.ErrNoProducts)
		return
	}

	// A body is optional; malformed JSON is still rejected.
	var req taxonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: invalid request body", common.ErrInvalidConfig))
		return
	}

	cfg := s.cfg.Taxonomy
	if req.Mode != "" {
		cfg.Mode = taxonomy.Mode(req.Mode)
	}
	if req.SizeHint > 0 {
		cfg.SizeHint = req.SizeHint
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	titles := make([]string, len(session.Products))
	for i, p := range session.Products {
		titles[i] = p.Title
	}

	gen := taxonomy.NewGenerator(s.llm, cfg, s.logger)
	tax, parents, err := gen.Generate(r.Context(), titles)
	if err != nil {
		writeError(w, err)
		return
	}

	session.Taxonomy = tax.Names()
	session.ParentMap = parents
	session.Partition = nil
	if err := s.sessions.Save(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taxonomyResponse{Taxonomy: session.Taxonomy, ParentMap: parents})
}

type classifyResponse struct {
	TaskID string `json:"task_id"`
}

type classifyResult struct {
	Collections []bucketCount `json:"collections"`
	Total       int           `json:"total"`
}

type bucketCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(session.Products) == 0 {
		writeError(w, common.ErrNoProducts)
		return
	}
	if len(session.Taxonomy) == 0 {
		writeError(w, fmt.Errorf("%w: generate a taxonomy before classifying", common.ErrMissingConfig))
		return
	}

	taskID := s.tasks.Run(func(ctx context.Context, taskID string) (json.RawMessage, error) {
		reporter := s.reporter(taskID)
		eng := engine.NewWithConfig(s.llm, s.cfg.Engine, s.logger)
		tax := model.NewTaxonomy(session.Taxonomy...)

		partition, err := eng.Classify(ctx, session.Products, tax, reporter)
		if err != nil {
			reporter.Report(model.Event{Type: model.EventError, Message: err.Error()})
			return nil, err
		}

		session.TaskID = taskID
		session.Partition = partition
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}

		result := classifyResult{Total: partition.Total()}
		for _, name := range partition.Names() {
			result.Collections = append(result.Collections, bucketCount{
				Name:  name,
				Count: len(partition.Indices(name)),
			})
		}
		return json.Marshal(result)
	})

	writeJSON(w, http.StatusAccepted, classifyResponse{TaskID: taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if session.Partition == nil {
		writeError(w, fmt.Errorf("%w: classify products before syncing", common.ErrMissingConfig))
		return
	}

	syncCfg := s.cfg.Sync
	if mode := r.URL.Query().Get("mode"); mode != "" {
		syncCfg.Mode = syncer.Mode(mode)
	}
	if err := syncCfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	sink, err := s.newSink(session.ShopURL, session.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}
	runner, err := syncer.NewWithConfig(sink, syncCfg)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming not supported"))
		return
	}

	taskID := s.tasks.Create()
	ch, unsubscribe := s.broker.Subscribe(taskID)
	defer unsubscribe()

	go s.runSync(taskID, runner, session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
			if event.Type == model.EventComplete || event.Type == model.EventError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// runSync executes the sync on its own context so a dropped stream consumer
// does not abort the writes already in flight.
func (s *Server) runSync(taskID string, runner *syncer.Syncer, session *storage.Session) {
	ctx := context.Background()
	s.tasks.Start(taskID)
	reporter := s.reporter(taskID)

	result, err := runner.Sync(ctx, session.Products, session.Partition, reporter)
	if err != nil {
		s.logger.Error("sync failed", "task_id", taskID, "error", err)
		s.tasks.Fail(taskID, err.Error())
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.tasks.Fail(taskID, err.Error())
		return
	}
	s.tasks.Complete(taskID, payload)

	session.TaskID = taskID
	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Warn("failed to persist session after sync", "error", err)
	}
}

func writeSSE(w http.ResponseWriter, event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// reporter bridges pipeline events to the broker and the task registry.
func (s *Server) reporter(taskID string) *taskReporter {
	return &taskReporter{server: s, taskID: taskID}
}

type taskReporter struct {
	server *Server
	taskID string
}

func (r *taskReporter) Report(event model.Event) {
	r.server.broker.Publish(r.taskID, event)
	switch event.Type {
	case model.EventProgress:
		// The classification engine reports Progress as a percentage.
		r.server.tasks.SetProgress(r.taskID, event.Progress, event.Message)
	case model.EventProductAdded:
		// The syncer reports Progress as a count of processed products.
		if event.Total > 0 {
			r.server.tasks.SetProgress(r.taskID, event.Progress*100/event.Total, event.Message)
		}
	}
}

// loadSession resolves the request's session cookie.
func (s *Server) loadSession(r *http.Request) (*storage.Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: no active session", common.ErrNotFound)
	}
	return s.sessions.Get(r.Context(), cookie.Value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// writeError maps pipeline sentinels onto HTTP statuses and emits a JSON
// error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrNoProducts),
		errors.Is(err, common.ErrMissingConfig),
		errors.Is(err, common.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrClassifierUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, common.ErrConnectivity):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
