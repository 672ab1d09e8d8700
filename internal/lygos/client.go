// Package lygos talks to the Lygos mobile-money gateway.
package lygos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

const ProviderName = "lygos"

var ErrNotConfigured = errors.New("lygos: base url or api key not configured")

type Config struct {
	BaseURL     string
	APIKey      string
	MerchantID  string
	Channel     string
	CreatePath  string // tried first, before the well-known paths
	MinorUnits  bool   // send amount*100 as an integer
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration // per attempt
}

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("lygos %s: status %d: %s", e.URL, e.StatusCode, e.Detail())
}

// Detail is the provider's message when the body carries one.
func (e *HTTPError) Detail() string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(e.Body)
}

type Client struct {
	cfg     Config
	http    *http.Client
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func New(cfg Config, hc *http.Client, m *metrics.Metrics) *Client {
	if cfg.CreatePath == "" {
		cfg.CreatePath = "/v1/transactions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, tracer: otel.Tracer("fulfillment/lygos"), metrics: m}
}

func (c *Client) Configured() bool { return c.cfg.BaseURL != "" && c.cfg.APIKey != "" }

type PaymentRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerPhone string
}

type PaymentResult struct {
	PaymentURL    string `json:"paymentUrl,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

type payer struct {
	Phone string `json:"phone"`
}

type payload struct {
	Reference   string            `json:"reference"`
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	Payer       payer             `json:"payer"`
	Metadata    map[string]string `json:"metadata"`
	MerchantID  string            `json:"merchantId,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
	ReturnURL   string            `json:"returnUrl,omitempty"`
}

func (c *Client) buildPayload(req PaymentRequest) payload {
	amount := json.Number(req.Amount.String())
	if c.cfg.MinorUnits {
		amount = json.Number(strconv.FormatInt(req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), 10))
	}
	return payload{
		Reference:   req.OrderID,
		Amount:      amount,
		Currency:    req.Currency,
		Payer:       payer{Phone: req.CustomerPhone},
		Metadata:    map[string]string{"orderId": req.OrderID},
		MerchantID:  c.cfg.MerchantID,
		Channel:     c.cfg.Channel,
		CallbackURL: c.cfg.CallbackURL,
		ReturnURL:   c.cfg.ReturnURL,
	}
}

type candidate struct {
	header, value string
	path          string
}

// candidates lists auth styles in the outer loop and paths in the inner one.
func (c *Client) candidates() []candidate {
	seen := map[string]bool{}
	var paths []string
	for _, p := range []string{c.cfg.CreatePath, "/api/v1/transactions", "/v1/transactions", "/transactions"} {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	auth := [][2]string{
		{"Authorization", "Bearer " + c.cfg.APIKey},
		{"x-api-key", c.cfg.APIKey},
	}
	out := make([]candidate, 0, len(auth)*len(paths))
	for _, a := range auth {
		for _, p := range paths {
			out = append(out, candidate{header: a[0], value: a[1], path: p})
		}
	}
	return out
}

// probeStatus reports answers that mean "wrong auth style or path".
func probeStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusNotFound || code == http.StatusMethodNotAllowed
}

// InitiateMomoPayment creates a provider transaction for an order. Candidates
// are tried in order; only 403, 404 and 405 move on to the next one.
func (c *Client) InitiateMomoPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if !c.Configured() {
		return PaymentResult{}, fmt.Errorf("%w: %w", orders.ErrGateway, ErrNotConfigured)
	}
	ctx, span := c.tracer.Start(ctx, "lygos.InitiateMomoPayment", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return PaymentResult{}, err
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	cands := c.candidates()
	var lastErr error
	for i, cand := range cands {
		res, err := c.attempt(ctx, base+cand.path, cand, body)
		if err == nil {
			c.metrics.GatewayAttempt("ok")
			span.SetAttributes(attribute.Int("lygos.attempts", i+1))
			return res, nil
		}
		var he *HTTPError
		if errors.As(err, &he) && probeStatus(he.StatusCode) {
			c.metrics.GatewayAttempt("probe_miss")
			lastErr = err
			continue
		}
		c.metrics.GatewayAttempt("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway error")
		return PaymentResult{}, fmt.Errorf("%w: %w", orders.ErrGateway, err)
	}

	span.SetStatus(codes.Error, "candidates exhausted")
	if lastErr == nil {
		return PaymentResult{}, fmt.Errorf("%w: payment initiation failed", orders.ErrGateway)
	}
	return PaymentResult{}, fmt.Errorf("%w: %d candidates refused: %w", orders.ErrGateway, len(cands), lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, cand candidate, body []byte) (PaymentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return PaymentResult{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set(cand.header, cand.value)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("lygos %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("lygos %s: read body: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PaymentResult{}, &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return parseResult(raw), nil
}

func parseResult(raw []byte) PaymentResult {
	data, err := decodeJSON(raw)
	if err != nil {
		return PaymentResult{}
	}
	return PaymentResult{
		PaymentURL:    firstString(data, paymentURLKeys...),
		TransactionID: firstString(data, transactionIDKeys...),
		Provider:      firstString(data, providerKeys...),
	}
}
