package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/engine"
	"github.com/Veraticus/shopsort/internal/events"
	"github.com/Veraticus/shopsort/internal/llm"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/Veraticus/shopsort/internal/storage"
	"github.com/Veraticus/shopsort/internal/syncer"
	"github.com/Veraticus/shopsort/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	products []model.Product
	err      error
}

func (s *stubSource) FetchProducts(context.Context, string) ([]model.Product, error) {
	return s.products, s.err
}

type testHarness struct {
	server   *Server
	sessions *storage.MemoryStore
	tasks    *task.Registry
	broker   *events.Broker
	llm      *engine.MockClassifier
	source   *stubSource
	sink     *syncer.MockSink
}

func newHarness(t *testing.T, llmResponses ...string) *testHarness {
	t.Helper()
	h := &testHarness{
		sessions: storage.NewMemoryStore(),
		tasks:    task.NewRegistry(),
		broker:   events.NewBroker(),
		llm:      engine.NewMockClassifier(llmResponses...),
		source:   &stubSource{},
		sink:     syncer.NewMockSink(),
	}
	t.Cleanup(h.broker.Close)

	srv, err := New(Config{}, Deps{
		Sessions: h.sessions,
		Tasks:    h.tasks,
		Broker:   h.broker,
		LLM:      h.llm,
		NewSource: func(shopURL, accessToken string) (Source, error) {
			return h.source, nil
		},
		NewSink: func(shopURL, accessToken string) (syncer.Sink, error) {
			return h.sink, nil
		},
	})
	require.NoError(t, err)
	h.server = srv
	return h
}

func (h *testHarness) seedSession(t *testing.T, session *storage.Session) {
	t.Helper()
	require.NoError(t, h.sessions.Save(context.Background(), session))
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: cookie})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func classifiedSession() *storage.Session {
	p := model.NewPartition("Shoes", "Socks")
	p.Assign("Shoes", 1)
	p.Assign("Socks", 2)
	return &storage.Session{
		ID:          "sess-1",
		ShopURL:     "https://example.myshopify.com",
		AccessToken: "tok",
		Tag:         "sale",
		Products: []model.Product{
			{ID: 1000, Title: "Running Shoes"},
			{ID: 1001, Title: "Wool Socks"},
		},
		Taxonomy:  []string{"Shoes", "Socks"},
		Partition: p,
	}
}

func TestFetchProducts(t *testing.T) {
	h := newHarness(t)
	h.source.products = []model.Product{
		{ID: 1, Title: "Running Shoes"},
		{ID: 2, Title: "Wool Socks"},
	}

	rec := postJSON(t, h.server.Handler(), "/api/fetch-products", fetchRequest{
		ShopURL:     "example.myshopify.com",
		AccessToken: "tok",
		Tag:         "sale",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp fetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.NotEmpty(t, resp.SessionID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Equal(t, resp.SessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	saved, err := h.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Products, 2)
	assert.Equal(t, "tok", saved.AccessToken)
}

func TestFetchProductsValidation(t *testing.T) {
	h := newHarness(t)
	rec := postJSON(t, h.server.Handler(), "/api/fetch-products", fetchRequest{Tag: "sale"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchProductsAuthError(t *testing.T) {
	h := newHarness(t)
	h.source.err = fmt.Errorf("%w: bad token", common.ErrAuth)

	rec := postJSON(t, h.server.Handler(), "/api/fetch-products", fetchRequest{
		ShopURL:     "example.myshopify.com",
		AccessToken: "bad",
		Tag:         "sale",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad token")
}

func TestSessionEndpoint(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, classifiedSession())

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "example.myshopify.com")
	assert.NotContains(t, rec.Body.String(), "tok", "credentials never leave the server")
}

func TestSessionRequired(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, h.server.Handler(), "/api/taxonomy", nil, "unknown-session")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaxonomyFlow(t *testing.T) {
	h := newHarness(t, `["Shoes", "Socks"]`)
	session := classifiedSession()
	session.Taxonomy = nil
	session.Partition = nil
	h.seedSession(t, session)

	rec := postJSON(t, h.server.Handler(), "/api/taxonomy", taxonomyRequest{Mode: "flat"}, "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp taxonomyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Shoes", "Socks", "Other"}, resp.Taxonomy)

	saved, err := h.sessions.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, resp.Taxonomy, saved.Taxonomy)
}

func TestTaxonomyRequiresProducts(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, &storage.Session{ID: "sess-1", ShopURL: "x", AccessToken: "y"})

	rec := postJSON(t, h.server.Handler(), "/api/taxonomy", nil, "sess-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func waitForTask(t *testing.T, r *task.Registry, id string) model.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := r.Get(id)
		require.NoError(t, err)
		if got.Terminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never finished")
	return model.Task{}
}

func TestClassifyFlow(t *testing.T) {
	h := newHarness(t, `{"1": "Shoes", "2": "Socks"}`)
	session := classifiedSession()
	session.Partition = nil
	h.seedSession(t, session)

	rec := postJSON(t, h.server.Handler(), "/api/classify", nil, "sess-1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp classifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)

	finished := waitForTask(t, h.tasks, resp.TaskID)
	require.Equal(t, model.TaskComplete, finished.Status)

	var result classifyResult
	require.NoError(t, json.Unmarshal(finished.Result, &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, []bucketCount{{Name: "Shoes", Count: 1}, {Name: "Socks", Count: 1}}, result.Collections)

	saved, err := h.sessions.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, saved.Partition)
	assert.Equal(t, []int{1}, saved.Partition.Indices("Shoes"))
	assert.Equal(t, resp.TaskID, saved.TaskID)
}

func TestClassifyRequiresTaxonomy(t *testing.T) {
	h := newHarness(t)
	session := classifiedSession()
	session.Taxonomy = nil
	session.Partition = nil
	h.seedSession(t, session)

	rec := postJSON(t, h.server.Handler(), "/api/classify", nil, "sess-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyUnavailableModelFallsBack(t *testing.T) {
	h := newHarness(t)
	h.llm.ChatFunc = func(context.Context, llm.Request) (string, error) {
		return "", fmt.Errorf("%w: model offline", common.ErrClassifierUnavailable)
	}
	session := classifiedSession()
	session.Partition = nil
	h.seedSession(t, session)

	rec := postJSON(t, h.server.Handler(), "/api/classify", nil, "sess-1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp classifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Every call failing still yields a complete partition: the fallback
	// policy sweeps everything into one bucket.
	finished := waitForTask(t, h.tasks, resp.TaskID)
	require.Equal(t, model.TaskComplete, finished.Status)

	var result classifyResult
	require.NoError(t, json.Unmarshal(finished.Result, &result))
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Collections, 1)
	assert.Equal(t, 2, result.Collections[0].Count)
}

func TestTaskStatusNotFound(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/nope", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncStream(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, classifiedSession())

	ts := httptest.NewServer(h.server.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sync/stream", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var received []model.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event model.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		received = append(received, event)
		if event.Type == model.EventComplete || event.Type == model.EventError {
			break
		}
	}

	require.NotEmpty(t, received)
	assert.Equal(t, model.EventStart, received[0].Type)

	final := received[len(received)-1]
	require.Equal(t, model.EventComplete, final.Type)
	assert.Equal(t, 2, final.SuccessCount)

	assert.Equal(t, 2, h.sink.CreateCalls())
}

func TestSyncStreamRequiresPartition(t *testing.T) {
	h := newHarness(t)
	session := classifiedSession()
	session.Partition = nil
	h.seedSession(t, session)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/stream", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncStreamBadMode(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, classifiedSession())

	req := httptest.NewRequest(http.MethodGet, "/api/sync/stream?mode=bogus", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
