package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

const maxBody = 1 << 20

type errorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid json")
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// statusOf maps the error taxonomy to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInvalidInput),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidPickupWindow),
		errors.Is(err, orders.ErrCodeMismatch),
		errors.Is(err, orders.ErrMissingContact):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, orders.ErrGateway),
		errors.Is(err, orders.ErrDeliveryFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	body := errorBody{Error: err.Error()}

	var se *orders.StockError
	switch {
	case errors.As(err, &se):
		body.Details = map[string]any{
			"productId":   se.ProductID,
			"productName": se.ProductName,
			"requested":   se.Requested,
			"available":   se.Available,
		}
	case errors.Is(err, orders.ErrCodeMismatch):
		body.Error = "invalid code"
	case code == http.StatusInternalServerError:
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}
