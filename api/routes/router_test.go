package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlez-backend/internal/app"
	"github.com/angelmondragon/settlez-backend/internal/catalog"
	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db"
	"github.com/angelmondragon/settlez-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/metrics"
)

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

type harness struct {
	handler http.Handler
	catalog catalog.Repository
	actor   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()

	services, err := app.NewServices(app.Params{
		DB:      conn,
		Metrics: metrics.NewSettlementMetrics(reg),
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "test"

	handler := NewRouter(cfg, nil, Dependencies{
		DB:          db.FromGorm(conn),
		Idempotency: &memoryStore{data: map[string]string{}},
		Gatherer:    reg,
		Orders:      services.Orders,
		Payments:    services.Payments,
		Refunds:     services.Refunds,
		CashDrawer:  services.CashDrawer,
	})
	return &harness{handler: handler, catalog: catalog.NewRepository(conn), actor: uuid.New()}
}

func (h *harness) send(t *testing.T, method, path, key, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Actor-Id", h.actor.String())
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)

	var envelope struct {
		Data  map[string]any `json:"data"`
		Error map[string]any `json:"error"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &envelope)
	if envelope.Data != nil {
		return resp, envelope.Data
	}
	return resp, envelope.Error
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		h.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestAPIRequiresActor(t *testing.T) {
	h := newHarness(t)
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cash-drawer/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSaleSettlesEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, session := h.send(t, http.MethodPost, "/api/v1/cash-drawer/sessions", "", `{"counts":{"twenty":5}}`)
	require.Equal(t, http.StatusBadRequest, resp.Code, "drawer open needs an idempotency key")
	resp, session = h.send(t, http.MethodPost, "/api/v1/cash-drawer/sessions", "open-1", `{"counts":{"twenty":5}}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	sessionID := session["id"].(string)

	hst := &models.TaxCode{Code: "HST", Name: "HST", Rate: decimal.RequireFromString("0.13")}
	require.NoError(t, h.catalog.CreateTaxCode(ctx, hst))
	product := &models.Product{Code: "WID", Name: "Widget", Price: decimal.RequireFromString("14.99"), TaxCodeID: &hst.ID, Active: true}
	require.NoError(t, h.catalog.CreateProduct(ctx, product))

	resp, order := h.send(t, http.MethodPost, "/api/v1/orders", "order-1", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "ORD-000001", order["order_number"])
	assert.Equal(t, sessionID, order["cash_drawer_session_id"])
	base := "/api/v1/orders/" + order["id"].(string)

	resp, order = h.send(t, http.MethodPost, base+"/lines", "", `{"sellable_type":"product","sellable_id":"`+product.ID.String()+`","quantity":3}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "50.82", order["total"])
	lineID := order["lines"].([]any)[0].(map[string]any)["id"].(string)

	resp, body := h.send(t, http.MethodPost, base+"/complete", "complete-early", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "ILLEGAL_STATE_TRANSITION", body["code"])

	payment := `{"method":"cash","amount":"50.82","amount_tendered":"55.00"}`
	resp, paid := h.send(t, http.MethodPost, base+"/payments", "pay-1", payment)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "0.02", paid["balance_due"])
	assert.Equal(t, true, paid["payment_complete"])
	first := resp.Body.String()

	resp, _ = h.send(t, http.MethodPost, base+"/payments", "pay-1", payment)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, first, resp.Body.String())

	resp, _ = h.send(t, http.MethodPost, base+"/payments", "pay-1", `{"method":"cash","amount":"1.00","amount_tendered":"1.00"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp, order = h.send(t, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, order["payments"], 1)

	resp, order = h.send(t, http.MethodPost, base+"/complete", "complete-1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "completed", order["status"])

	resp, body = h.send(t, http.MethodPost, base+"/lines", "", `{"sellable_type":"product","sellable_id":"`+product.ID.String()+`","quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, body)

	resp, refund := h.send(t, http.MethodPost, base+"/refunds", "refund-1", `{"reason":"damaged","lines":[{"order_line_id":"`+lineID+`","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "REF-000001", refund["refund"].(map[string]any)["refund_number"])
	assert.Equal(t, "partially_refunded", refund["order"].(map[string]any)["status"])

	resp, _ = h.send(t, http.MethodGet, base+"/events", "", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	metricsResp := httptest.NewRecorder()
	h.handler.ServeHTTP(metricsResp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsResp.Body.String(), "orders_completed_total 1")
	assert.Contains(t, metricsResp.Body.String(), `payments_recorded_total{method="cash"} 1`)
	assert.Contains(t, metricsResp.Body.String(), "refunds_processed_total 1")
}
