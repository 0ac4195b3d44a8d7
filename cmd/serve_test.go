package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/store"
)

func newTestAPI(t *testing.T) (*apiServer, http.Handler, *[]string) {
	t.Helper()
	st := newTestStore(t)

	var launched []string
	s := &apiServer{
		st:          st,
		defaultMode: model.ModeSequential,
		launch: func(run *model.Run) {
			launched = append(launched, run.ID)
		},
	}
	return s, s.routes([]string{"*"}), &launched
}

func TestHealthEndpoint(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCreateRun_Accepted(t *testing.T) {
	s, handler, launched := newTestAPI(t)

	payload := map[string]string{"document": "reports/acme-2024.pdf", "mode": "parallel"}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])

	run, err := s.st.GetRun(context.Background(), resp["id"])
	require.NoError(t, err)
	assert.Equal(t, "reports/acme-2024.pdf", run.Document)
	assert.Equal(t, model.ModeParallel, run.Mode)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	assert.Equal(t, []string{resp["id"]}, *launched)
}

func TestCreateRun_DefaultMode(t *testing.T) {
	s, handler, _ := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"document": "reports/acme.txt"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	run, err := s.st.GetRun(context.Background(), resp["id"])
	require.NoError(t, err)
	assert.Equal(t, model.ModeSequential, run.Mode)
}

func TestCreateRun_InvalidBody(t *testing.T) {
	_, handler, launched := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
	assert.Empty(t, *launched)
}

func TestCreateRun_MissingDocument(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"mode": "sequential"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "document is required")
}

func TestCreateRun_UnknownMode(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"document": "reports/acme.pdf", "mode": "turbo"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown execution mode")
}

func TestGetRun_OK(t *testing.T) {
	s, handler, _ := newTestAPI(t)

	created, err := s.st.CreateRun(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, created.ID, run.ID)
	assert.Equal(t, "reports/acme.pdf", run.Document)
}

func TestGetRun_NotFound(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestListRuns_LimitAndStatus(t *testing.T) {
	s, handler, _ := newTestAPI(t)
	ctx := context.Background()

	for _, doc := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, err := s.st.CreateRun(ctx, doc, model.ModeSequential)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 3)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?status=completed", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Empty(t, runs)
}

func TestListRuns_BadLimit(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "limit must be a positive integer")
}

func TestDeleteRun(t *testing.T) {
	s, handler, _ := newTestAPI(t)

	created, err := s.st.CreateRun(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/runs/"+created.ID, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	_, err = s.st.GetRun(context.Background(), created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	req = httptest.NewRequest(http.MethodDelete, "/api/runs/"+created.ID, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSHeaders(t *testing.T) {
	_, handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
