package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/WishPool/internal/ledger"
	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/repository/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	store := memory.NewLedgerStore()
	coordinator := ledger.NewCoordinator(store, nil, l, nil)
	admin := ledger.NewAdmin(store, nil, l, nil)
	return NewServer(coordinator, admin, l, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var adminHeaders = map[string]string{
	"X-Contributor-Id":   "admin-1",
	"X-Contributor-Name": "Admin",
	"X-Is-Admin":         "true",
}

func aliceHeaders() map[string]string {
	return map[string]string{
		"X-Contributor-Id":   "alice-1",
		"X-Contributor-Name": "Alice",
	}
}

func createTestItem(t *testing.T, h http.Handler, body string) models.WishlistItem {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/items", body, adminHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.WishlistItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	return item
}

func TestCreateItemRequiresAdmin(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/items",
		`{"name":"Bike","target_cost":"800","mode":"cumulative","partial_allowed":true}`,
		aliceHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndGetItem(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Bike","target_cost":"800","mode":"cumulative","partial_allowed":true}`)
	assert.Equal(t, models.StatusPending, item.Status)

	rec := doJSON(t, h, http.MethodGet, "/api/items/"+item.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/items/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateItemInvalidSpec(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/items",
		`{"name":"","target_cost":"-1","mode":"bogus"}`, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContributeFlow(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Bike","target_cost":"800","mode":"cumulative","partial_allowed":true}`)

	rec := doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{"amount":"250.00"}`, aliceHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp contributeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusCommitted, resp.Item.Status)
	assert.Equal(t, "alice-1", resp.Record.ContributorID)

	// Overshoot is rejected with 400.
	rec = doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{"amount":"551.00"}`, aliceHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The log shows the single committed record.
	rec = doJSON(t, h, http.MethodGet, "/api/items/"+item.ID+"/contributions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.ContributionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

func TestContributeRequiresIdentity(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Bike","target_cost":"800","mode":"cumulative","partial_allowed":true}`)

	rec := doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{"amount":"10.00"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExclusiveClaimConflict(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Watch","target_cost":"300","mode":"exclusive"}`)

	rec := doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{}`, aliceHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Second claim conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{}`, aliceHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDuplicateIdempotencyKey(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Bike","target_cost":"800","mode":"cumulative","partial_allowed":true}`)

	body := `{"amount":"100.00","idempotency_key":"k1"}`
	rec := doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions", body, aliceHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions", body, aliceHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateAndDeleteItem(t *testing.T) {
	h := newTestServer(t).Handler()

	item := createTestItem(t, h,
		`{"name":"Camera","target_cost":"1000","mode":"cumulative","partial_allowed":true}`)

	rec := doJSON(t, h, http.MethodPost, "/api/items/"+item.ID+"/contributions",
		`{"amount":"800.00"}`, aliceHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	// Lowered target retroactively fulfills.
	rec = doJSON(t, h, http.MethodPut, "/api/items/"+item.ID,
		`{"name":"Camera","target_cost":"700","mode":"cumulative","partial_allowed":true}`,
		adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.WishlistItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusFulfilled, updated.Status)

	// Delete requires admin and hides the item afterwards.
	rec = doJSON(t, h, http.MethodDelete, "/api/items/"+item.ID, "", aliceHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/items/"+item.ID, "", adminHeaders)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/items/"+item.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
