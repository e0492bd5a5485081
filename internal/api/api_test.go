package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/monitoring"
	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/task"
	"github.com/sells-group/catalog-cli/internal/tier"
)

type testServer struct {
	srv   *httptest.Server
	orch  *mockOrchestrator
	batch *mockBatch
	store *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ts := &testServer{orch: &mockOrchestrator{}, batch: &mockBatch{}, store: st}
	s := New(ts.orch, ts.batch, st, tier.NewEngine(st), config.ServerConfig{})
	ts.srv = httptest.NewServer(s.Handler())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateItem_Accepted(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.On("CreateItem", mock.Anything, mock.MatchedBy(func(p model.ItemPayload) bool {
		return p.Base.Name == "Widget" && len(p.PriceTiers) == 1 && p.Images == nil
	})).Return(&model.Item{ID: "item-1", Name: "Widget"}, nil)
	ts.orch.On("TaskStatus", "item-1").Return(&model.BackgroundTask{ItemID: "item-1", Status: model.TaskStatusProcessing})

	resp, body := ts.do(t, http.MethodPost, "/items",
		`{"base":{"name":"Widget","owner_id":"o1"},"price_tiers":[{"minQty":1,"price":"9.50"}]}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "item-1", body["item"].(map[string]any)["id"])
	assert.Equal(t, "processing", body["task"].(map[string]any)["status"])
	ts.orch.AssertExpectations(t)
}

func TestCreateItem_KeepsExactTierNumbers(t *testing.T) {
	ts := newTestServer(t)
	var got model.ItemPayload
	ts.orch.On("CreateItem", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(model.ItemPayload) }).
		Return(&model.Item{ID: "item-1"}, nil)
	ts.orch.On("TaskStatus", "item-1").Return(nil)

	resp, _ := ts.do(t, http.MethodPost, "/items", `{"base":{"name":"W"},"price_tiers":[{"minQuantity":1,"unitPrice":0.1}]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	res := tier.Validate(got.PriceTiers)
	require.True(t, res.IsValid, res.Errors)
	assert.Equal(t, "0.1", res.Normalized[0].UnitPrice.String())
}

func TestCreateItem_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/items", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["error"])

	resp, body = ts.do(t, http.MethodPost, "/items", `{"base":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "base.name is required", body["error"])
	ts.orch.AssertNotCalled(t, "CreateItem", mock.Anything, mock.Anything)
}

func TestCreateItem_BaseFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.On("CreateItem", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	resp, body := ts.do(t, http.MethodPost, "/items", `{"base":{"name":"W"}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body["error"])
}

func TestCreateItem_ShuttingDown(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.On("CreateItem", mock.Anything, mock.Anything).
		Return(&model.Item{ID: "item-9", Name: "W"}, eris.Wrap(pipeline.ErrShuttingDown, "pipeline: start task for item item-9"))

	resp, body := ts.do(t, http.MethodPost, "/items", `{"base":{"name":"W"},"specifications":[{"name":"a","value":"b"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "server is shutting down", body["error"])
	assert.Equal(t, "item-9", body["item"].(map[string]any)["id"])
}

func TestUpdateItem(t *testing.T) {
	ts := newTestServer(t)
	item, err := ts.store.CreateItem(context.Background(), model.ItemFields{Name: "Chair", BasePrice: decimal.NewFromInt(50)})
	require.NoError(t, err)

	ts.orch.On("UpdateItem", mock.Anything, item.ID, mock.MatchedBy(func(p model.ItemPayload) bool {
		return p.Patch.Name != nil && *p.Patch.Name == "Stool" && p.PriceTiers != nil && len(p.PriceTiers) == 0
	})).Return(nil)
	ts.orch.On("TaskStatus", item.ID).Return(&model.BackgroundTask{ItemID: item.ID, Status: model.TaskStatusCompleted})

	resp, body := ts.do(t, http.MethodPatch, "/items/"+item.ID, `{"patch":{"name":"Stool"},"price_tiers":[]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["task"].(map[string]any)["status"])
	ts.orch.AssertExpectations(t)
}

func TestUpdateItem_StepFailure(t *testing.T) {
	ts := newTestServer(t)
	stepErr := &pipeline.StepError{
		Step: model.StepPriceTiers,
		Err:  &tier.ValidationError{Errors: []string{"Tier 1: unit price is required"}},
	}
	ts.orch.On("UpdateItem", mock.Anything, "item-1", mock.Anything).Return(stepErr)

	resp, body := ts.do(t, http.MethodPatch, "/items/item-1", `{"price_tiers":[{"from":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "priceTiers", body["step"])
	assert.Equal(t, []any{"Tier 1: unit price is required"}, body["details"])
}

func TestUpdateItem_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.On("UpdateItem", mock.Anything, "item-1", mock.Anything).
		Return(eris.Wrap(task.ErrTaskActive, "item item-1 is processing"))

	resp, _ := ts.do(t, http.MethodPatch, "/items/item-1", `{"specifications":[{"name":"a","value":"b"}]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetItem(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	item, err := ts.store.CreateItem(ctx, model.ItemFields{Name: "Desk", BasePrice: decimal.NewFromInt(120)})
	require.NoError(t, err)
	require.NoError(t, ts.store.ReplaceSpecifications(ctx, item.ID, []model.Specification{{Name: "Width", Value: "140", Unit: "cm"}}))
	ts.orch.On("TaskStatus", item.ID).Return(nil)

	resp, body := ts.do(t, http.MethodGet, "/items/"+item.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Desk", body["item"].(map[string]any)["name"])
	assert.Len(t, body["specifications"], 1)
	assert.Nil(t, body["task"])

	resp, _ = ts.do(t, http.MethodGet, "/items/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskRoutes(t *testing.T) {
	ts := newTestServer(t)
	failed := &model.BackgroundTask{ItemID: "item-1", Status: model.TaskStatusFailed, Error: "Error processing images: 503"}

	ts.orch.On("TaskStatus", "item-1").Return(failed).Once()
	resp, body := ts.do(t, http.MethodGet, "/items/item-1/task", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Error processing images: 503", body["error"])

	ts.orch.On("TaskStatus", "item-2").Return(nil).Once()
	resp, _ = ts.do(t, http.MethodGet, "/items/item-2/task", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.orch.On("Cancel", "item-1").Return(nil, eris.Wrap(task.ErrNotActive, "item item-1 is failed"))
	resp, _ = ts.do(t, http.MethodPost, "/items/item-1/task/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ts.orch.On("ClearTask", mock.Anything, "item-1").Return(failed, nil)
	resp, body = ts.do(t, http.MethodDelete, "/items/item-1/task", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])

	ts.orch.On("ClearTask", mock.Anything, "item-3").Return(nil, eris.Wrap(task.ErrNotFound, "item item-3"))
	resp, _ = ts.do(t, http.MethodDelete, "/items/item-3/task", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetryTask(t *testing.T) {
	ts := newTestServer(t)
	ts.orch.On("Retry", mock.Anything, "item-1", mock.Anything).Return(nil)
	ts.orch.On("TaskStatus", "item-1").Return(&model.BackgroundTask{ItemID: "item-1", Status: model.TaskStatusCompleted, Attempts: 2})

	resp, body := ts.do(t, http.MethodPost, "/items/item-1/task/retry", `{"images":[]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["attempts"])

	ts.orch.On("Retry", mock.Anything, "item-2", mock.Anything).Return(eris.Wrap(task.ErrRetryNotAllowed, "item item-2 is completed"))
	resp, body = ts.do(t, http.MethodPost, "/items/item-2/task/retry", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "retry is only allowed for failed tasks", body["error"])
}

func TestCreateBatch(t *testing.T) {
	ts := newTestServer(t)
	result := &model.BatchResult{Total: 2, Successful: 1, Failed: 1, Results: []model.Outcome{
		{Status: model.OutcomeFulfilled, Value: &model.Item{ID: "a"}},
		{Status: model.OutcomeRejected, Reason: "duplicate"},
	}}
	ts.batch.On("Run", mock.Anything, mock.MatchedBy(func(items []model.ItemPayload) bool { return len(items) == 2 }), 2).Return(result)

	resp, body := ts.do(t, http.MethodPost, "/items/batch", `{"items":[{"base":{"name":"A"}},{"base":{"name":"B"}}],"batch_size":2}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["failed"])

	resp, _ = ts.do(t, http.MethodPost, "/items/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateTiers(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/tiers/validate",
		`{"tiers":[{"from":1,"to":10,"price":5},{"from":5,"price":4}]}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_valid"])
	assert.Equal(t, []any{"Tier 2 (5+) overlaps with tier 1 (1-10)"}, body["errors"])
}

func TestQuote_InlineTiers(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/tiers/quote",
		`{"tiers":[{"from":1,"to":9,"price":"10"},{"from":10,"price":"8"}],"quantity":12}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "8", body["unit_price"])
	assert.Equal(t, "96", body["total_amount"])
}

func TestQuote_StoredTiers(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	item, err := ts.store.CreateItem(ctx, model.ItemFields{Name: "Pen", BasePrice: decimal.RequireFromString("2.50")})
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodPost, "/tiers/quote", `{"item_id":"`+item.ID+`","quantity":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2.5", body["unit_price"])
	assert.Equal(t, "10", body["total_amount"])

	resp, _ = ts.do(t, http.MethodPost, "/tiers/quote", `{"item_id":"`+item.ID+`","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuote_InvalidTiers(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/tiers/quote", `{"tiers":[{"from":0,"price":1}],"quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid price tiers", body["error"])
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/items", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTaskStats(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	registry := task.NewRegistry(nil)
	steps := map[model.Step]model.StepStatus{
		model.StepImages:         model.StepStatusSkipped,
		model.StepSpecifications: model.StepStatusPending,
		model.StepPriceTiers:     model.StepStatusSkipped,
	}
	run, err := registry.Start("item-1", steps)
	require.NoError(t, err)
	run.Fail("Error processing specifications: boom")
	run, err = registry.Start("item-2", steps)
	require.NoError(t, err)
	run.Complete()
	_, err = registry.Start("item-3", steps)
	require.NoError(t, err)

	s := New(&mockOrchestrator{}, &mockBatch{}, st, tier.NewEngine(st), config.ServerConfig{}).
		WithStats(monitoring.NewCollector(registry, 0), 60)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tasks/stats")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitoring.TaskSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.Active)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Completed)
	assert.InDelta(t, 0.5, snap.FailRate, 0.0001)
	assert.Equal(t, "Error processing specifications: boom", snap.RecentFailure)

	bad, err := http.Get(srv.URL + "/tasks/stats?lookback_mins=abc")
	require.NoError(t, err)
	bad.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestTaskStats_DisabledWithoutCollector(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodGet, "/tasks/stats", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
