package httpx

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/lygos"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/ratelimit"
)

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID    = "X-User-Id"
	HeaderStaffID   = "X-Staff-Id"
	HeaderStaffRole = "X-Staff-Role"
)

type Handler struct {
	Service *fulfillment.Service
	Limiter ratelimit.Limiter // webhook, keyed by client IP
	Metrics *metrics.Metrics
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/config/policy", h.policy)
	r.Get("/pickup-slots", h.pickupSlots)

	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.orderStatus)
	r.Post("/orders/{id}/resend-receipt", h.resendReceipt)

	r.Post("/payments/initiate", h.initiatePayment)
	r.Post("/payments/lygos/webhook", h.paymentWebhook)

	r.Post("/staff/validate-code", h.validateCode)
	r.Post("/staff/verify-final-code", h.verifyFinalCode)
	r.Get("/staff/orders", h.staffOrders)

	r.Post("/stock/{kind:in|out|adjust}", h.moveStock)
	r.Get("/stock/movements", h.stockMovements)
}

func staffActor(r *http.Request) orders.Actor {
	return orders.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderStaffID)),
		Role: orders.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderStaffRole)))),
	}
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return orders.Page(page, limit)
}

func (h *Handler) policy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Policy())
}

func (h *Handler) pickupSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Service.ListPickupSlots(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotOf(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in fulfillment.CreateOrderInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	in.UserID = r.Header.Get(HeaderUserID)

	o, err := h.Service.CreateOrder(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderOf(o))
}

// listOrders is the customer's own history; without an identity it is empty.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid := r.Header.Get(HeaderUserID)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderUserID})
		return
	}
	page, limit := pagination(r)
	p, err := h.Service.ListOrders(r.Context(), orders.OrderFilter{
		UserID: uid,
		Status: orders.Status(r.URL.Query().Get("status")),
	}, page, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageOf(p, orderOf))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderOf(o))
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.GetOrderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) resendReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel string `json:"channel"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	if err := h.Service.ResendReceipt(r.Context(), chi.URLParam(r, "id"), req.Channel); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
		Method  string `json:"method"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	res, err := h.Service.InitiatePayment(r.Context(), req.OrderID, req.Method)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// paymentWebhook: rate limit, then signature and payload, then apply. Once
// a delivery is authentic and well formed it is always acknowledged, except
// when the store fails and the provider should retry.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if h.Limiter != nil {
		ok, err := h.Limiter.Allow(r.Context(), peerIP(r))
		if err != nil {
			log.Warn("rate_limiter_unavailable", zap.Error(err))
			ok = true
		}
		if !ok {
			h.Metrics.RateLimited()
			h.Metrics.Webhook("rate_limited")
			writeDomainError(w, r, orders.ErrRateLimited)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeBadRequest(w, "unreadable body")
		return
	}
	res, err := h.Service.HandlePaymentWebhook(r.Context(), body, lygos.SignatureFrom(r.Header))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "result": res})
}

func (h *Handler) validateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string `json:"orderId"`
		TemporaryCode string `json:"temporaryCode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	o, err := h.Service.ValidatePickupCode(r.Context(), staffActor(r), req.OrderID, req.TemporaryCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"finalCode": o.FinalPickupCode,
		"order":     staffOrderOf(o),
	})
}

func (h *Handler) verifyFinalCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID   string `json:"orderId"`
		FinalCode string `json:"finalCode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	o, err := h.Service.VerifyFinalPickupCode(r.Context(), staffActor(r), req.OrderID, req.FinalCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": staffOrderOf(o)})
}

func (h *Handler) staffOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	p, err := h.Service.StaffOrders(r.Context(), staffActor(r), orders.OrderFilter{
		Status: orders.Status(r.URL.Query().Get("status")),
	}, page, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageOf(p, staffOrderOf))
}

func (h *Handler) moveStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Reason    string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	actor := staffActor(r)
	move := h.Service.StockIn
	switch chi.URLParam(r, "kind") {
	case "out":
		move = h.Service.StockOut
	case "adjust":
		move = h.Service.StockAdjust
	}
	p, mv, err := move(r.Context(), actor, req.ProductID, req.Quantity, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": productOf(p), "movement": movementOf(mv)})
}

func (h *Handler) stockMovements(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	q := r.URL.Query()
	p, err := h.Service.ListStockMovements(r.Context(), staffActor(r), orders.MovementFilter{
		ProductID: q.Get("productId"),
		Type:      orders.MovementType(q.Get("type")),
	}, page, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]movementView, 0, len(p.Movements))
	for _, m := range p.Movements {
		out = append(out, movementOf(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": out, "total": p.Total, "page": p.Page, "limit": p.Limit})
}
