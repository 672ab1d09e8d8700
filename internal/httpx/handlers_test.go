package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/lygos"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/ratelimit"
)

const secret = "whsec-http"

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type syncRunner struct{}

func (syncRunner) Go(ctx context.Context, _ string, fn func(context.Context) error) { _ = fn(ctx) }

type env struct {
	srv     *httptest.Server
	store   *orders.MemoryStore
	product orders.Product
	slot    orders.PickupSlot
}

func newEnv(t *testing.T, limiter ratelimit.Limiter) *env {
	t.Helper()
	store := orders.NewMemoryStore()
	ctx := context.Background()
	p, err := store.UpsertProduct(ctx, orders.Product{SKU: "RIZ", Name: "Riz", Price: decimal.NewFromInt(1500), Stock: 10})
	require.NoError(t, err)
	slot, err := store.UpsertPickupSlot(ctx, orders.PickupSlot{ID: "slot-1", Date: now, TimeFrom: "14:00", TimeTo: "18:00", Capacity: 20, Remaining: 20, Active: true})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := fulfillment.New(fulfillment.Config{WebhookSecret: secret}, fulfillment.Deps{
		Store:   store,
		Tasks:   syncRunner{},
		Metrics: m,
		Now:     func() time.Time { return now },
	})
	r := NewRouter(zap.NewNop(), m, reg)
	(&Handler{Service: svc, Limiter: limiter, Metrics: m}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: store, product: p, slot: slot}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (e *env) createOrder(t *testing.T, qty int) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customerName":  "Awa",
		"customerPhone": "061234567",
		"customerEmail": "awa@example.com",
		"pickupSlotId":  e.slot.ID,
		"items":         []map[string]any{{"productId": e.product.ID, "quantity": qty}},
	}, map[string]string{HeaderUserID: "u1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["id"].(string)
}

func (e *env) webhook(t *testing.T, ref, status string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"reference": ref, "status": status})
	require.NoError(t, err)
	resp, _ := e.do(t, http.MethodPost, "/payments/lygos/webhook", raw,
		map[string]string{lygos.SignatureHeader: lygos.Sign(secret, raw)})
	return resp
}

func staff(id string, role orders.Role) map[string]string {
	return map[string]string{HeaderStaffID: id, HeaderStaffRole: string(role)}
}

func TestHealthAndPolicy(t *testing.T) {
	e := newEnv(t, nil)

	resp, _ := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/config/policy", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 24, body["perishableExpiry"])
	assert.EqualValues(t, 48, body["nonPerishableExpiry"])

	resp, body = e.do(t, http.MethodGet, "/pickup-slots?date=2026-03-10", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["slots"], 1)

	resp, _ = e.do(t, http.MethodGet, "/pickup-slots?date=10/03/2026", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndReadOrder(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createOrder(t, 2)

	resp, body := e.do(t, http.MethodGet, "/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_payment", body["status"])
	assert.Equal(t, "3000.00", body["amount"])
	assert.NotContains(t, body, "tempPickupCode")

	resp, body = e.do(t, http.MethodGet, "/orders/"+id+"/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_payment", body["status"])

	resp, body = e.do(t, http.MethodGet, "/orders", nil, map[string]string{HeaderUserID: "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	resp, _ = e.do(t, http.MethodGet, "/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/orders/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrder_Errors(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customerName": "Awa", "customerPhone": "06", "pickupSlotId": e.slot.ID,
		"items": []map[string]any{{"productId": e.product.ID, "quantity": 11}},
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, body)
	assert.Equal(t, "Riz", details["productName"])
	assert.EqualValues(t, 10, details["available"])

	resp, _ = e.do(t, http.MethodPost, "/orders", []byte(`{"items":`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/orders", map[string]any{"customerName": "Awa"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentInitiate_GatewayMissing(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createOrder(t, 1)

	resp, _ := e.do(t, http.MethodPost, "/payments/initiate", map[string]string{"orderId": id, "method": "momo"}, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/payments/initiate", map[string]string{"orderId": id, "method": "card"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_Flow(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createOrder(t, 1)

	raw := []byte(`{"reference":"` + id + `","status":"success"}`)
	resp, _ := e.do(t, http.MethodPost, "/payments/lygos/webhook", raw, map[string]string{lygos.SignatureHeader: "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := []byte(`not json`)
	resp, _ = e.do(t, http.MethodPost, "/payments/lygos/webhook", bad, map[string]string{lygos.SignatureHeaderSHA256: lygos.Sign(secret, bad)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/payments/lygos/webhook", raw, map[string]string{lygos.SignatureHeader: lygos.Sign(secret, raw)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "applied", body["result"])

	resp, body = e.do(t, http.MethodPost, "/payments/lygos/webhook", raw, map[string]string{lygos.SignatureHeader: lygos.Sign(secret, raw)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["result"])

	assert.Equal(t, http.StatusOK, e.webhook(t, "ghost", "success").StatusCode)
}

func TestWebhook_RateLimited(t *testing.T) {
	e := newEnv(t, ratelimit.NewSlidingWindow(2, time.Minute))

	assert.Equal(t, http.StatusOK, e.webhook(t, "ghost", "pending").StatusCode)
	assert.Equal(t, http.StatusOK, e.webhook(t, "ghost", "pending").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, e.webhook(t, "ghost", "pending").StatusCode)
}

func TestWebhook_RateLimitIgnoresForwardedFor(t *testing.T) {
	e := newEnv(t, ratelimit.NewSlidingWindow(20, time.Minute))
	raw, err := json.Marshal(map[string]string{"reference": "ghost", "status": "pending"})
	require.NoError(t, err)

	limited := 0
	for i := 0; i < 30; i++ {
		resp, _ := e.do(t, http.MethodPost, "/payments/lygos/webhook", raw, map[string]string{
			lygos.SignatureHeader: lygos.Sign(secret, raw),
			"X-Forwarded-For":     fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			"X-Real-IP":           fmt.Sprintf("172.16.0.%d", i+1),
		})
		if i < 20 {
			assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 10, limited)
}

func TestPeerIP(t *testing.T) {
	var seen string
	h := withPeer(middleware.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = peerIP(r)
	})))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.7", seen)

	assert.Equal(t, "198.51.100.1", peerIP(&http.Request{RemoteAddr: "198.51.100.1:80"}))
}

func TestPickupCheckpoints(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createOrder(t, 1)
	require.Equal(t, http.StatusOK, e.webhook(t, id, "paid").StatusCode)

	o, err := e.store.GetOrder(context.Background(), id)
	require.NoError(t, err)

	resp, _ := e.do(t, http.MethodPost, "/staff/validate-code",
		map[string]string{"orderId": id, "temporaryCode": o.TempPickupCode}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/staff/validate-code",
		map[string]string{"orderId": id, "temporaryCode": "ZZZZZZZZ"}, staff("p1", orders.RolePreparer))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid code", body["error"])

	resp, body = e.do(t, http.MethodPost, "/staff/validate-code",
		map[string]string{"orderId": id, "temporaryCode": o.TempPickupCode}, staff("p1", orders.RolePreparer))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	final, _ := body["finalCode"].(string)
	assert.Len(t, final, 8)

	resp, _ = e.do(t, http.MethodPost, "/staff/verify-final-code",
		map[string]string{"orderId": id, "finalCode": final}, staff("p1", orders.RolePreparer))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/staff/verify-final-code",
		map[string]string{"orderId": id, "finalCode": final}, staff("c1", orders.RoleCashier))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	order := body["order"].(map[string]any)
	assert.Equal(t, "completed", order["status"])

	resp, body = e.do(t, http.MethodGet, "/staff/orders", nil, staff("c1", orders.RoleCashier))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
}

func TestStockRoutes(t *testing.T) {
	e := newEnv(t, nil)
	admin := staff("a1", orders.RoleAdmin)

	resp, body := e.do(t, http.MethodPost, "/stock/in", map[string]any{"productId": e.product.ID, "quantity": 5, "reason": "livraison"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 15, body["product"].(map[string]any)["stock"])

	resp, _ = e.do(t, http.MethodPost, "/stock/out", map[string]any{"productId": e.product.ID, "quantity": 50}, admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/stock/out", map[string]any{"productId": e.product.ID, "quantity": 0}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/stock/adjust", map[string]any{"productId": e.product.ID, "quantity": 3}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["product"].(map[string]any)["stock"])

	resp, _ = e.do(t, http.MethodPost, "/stock/in", map[string]any{"productId": e.product.ID, "quantity": 1}, staff("c1", orders.RoleCashier))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/stock/movements?productId="+e.product.ID+"&limit=1", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])
	mvs := body["movements"].([]any)
	require.Len(t, mvs, 1)
	assert.Equal(t, "adjust", mvs[0].(map[string]any)["type"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	e.createOrder(t, 1)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fulfillment_orders_created_total 1")
	assert.Contains(t, buf.String(), `route="/orders"`)
}
