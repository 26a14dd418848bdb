package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/outbox"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

type succeedingExecutor struct{}

func (succeedingExecutor) Execute(ctx context.Context, op *model.PendingOperation) (*outbox.ExecResult, error) {
	return &outbox.ExecResult{DealID: 42, Phone: "5511999887766"}, nil
}

func newTestRouter(store outbox.Store) http.Handler {
	orch := outbox.NewOrchestrator(store, nil, nil, nil, logger.NewNop())
	orch.RegisterExecutor(model.OpCreateDeal, succeedingExecutor{})
	h := NewOperationHandler(store, orch, logger.NewNop())

	r := chi.NewRouter()
	r.Route("/api/v1/operations", h.Routes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedOperation(t *testing.T, store outbox.Store, status model.OperationStatus) *model.PendingOperation {
	t.Helper()

	op, err := store.Create(context.Background(), model.CreateOperationRequest{
		OperationType: model.OpCreateDeal,
		EntityType:    model.EntityDeal,
		Payload:       map[string]any{"phone": "5511999887766"},
	})
	require.NoError(t, err)

	if status != model.StatusPending {
		_, err = store.SetStatus(context.Background(), op.ID, status, "")
		require.NoError(t, err)
	}
	return op
}

func TestStatusEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	seedOperation(t, store, model.StatusPending)
	seedOperation(t, store, model.StatusFailed)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/operations/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts model.OperationCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 2, counts.Total)
}

func TestListEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	seedOperation(t, store, model.StatusPending)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/operations/list?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ListOperationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, model.StatusPending, resp.Status)
}

func TestListEndpointRejectsUnknownStatus(t *testing.T) {
	router := newTestRouter(outbox.NewMemoryStore())

	rec := doRequest(t, router, http.MethodGet, "/api/v1/operations/list?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/operations/list", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFailedEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	seedOperation(t, store, model.StatusFailed)
	seedOperation(t, store, model.StatusPending)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/operations/failed/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ListOperationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, model.StatusFailed, resp.Status)
}

func TestCreateEndpoint(t *testing.T) {
	router := newTestRouter(outbox.NewMemoryStore())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/", model.CreateOperationRequest{
		OperationType: model.OpCreateDeal,
		EntityType:    model.EntityDeal,
		Payload:       map[string]any{"phone": "5511999887766"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var op model.PendingOperation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &op))
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, model.StatusPending, op.Status)
}

func TestCreateEndpointRejectsUnknownType(t *testing.T) {
	router := newTestRouter(outbox.NewMemoryStore())

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/", model.CreateOperationRequest{
		OperationType: "drop_table",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	op := seedOperation(t, store, model.StatusPending)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/operations/"+op.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/operations/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	op := seedOperation(t, store, model.StatusFailed)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/"+op.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	// A logical failure still answers 200 with success=false.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/operations/missing/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestResetEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	failed := seedOperation(t, store, model.StatusFailed)
	pending := seedOperation(t, store, model.StatusPending)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/"+failed.ID+"/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Only failed operations are resettable.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/operations/"+pending.ID+"/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryAllFailedEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	seedOperation(t, store, model.StatusFailed)
	seedOperation(t, store, model.StatusFailed)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/retry-all-failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.RetryAllResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)
}

func TestProcessEndpoint(t *testing.T) {
	store := outbox.NewMemoryStore()
	seedOperation(t, store, model.StatusPending)
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/operations/process?batch_size=10&check_alerts=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
}
