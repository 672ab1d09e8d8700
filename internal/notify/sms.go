package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSMSEndpoint = "https://api.sms.to/sms/send"

type SMSConfig struct {
	APIKey      string
	Endpoint    string
	CountryCode string // prefix for local numbers, e.g. +242
}

// SMSClient sends text messages through the sms.to REST API.
type SMSClient struct {
	cfg  SMSConfig
	http *http.Client
}

func NewSMSClient(cfg SMSConfig, hc *http.Client) *SMSClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSMSEndpoint
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "+242"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &SMSClient{cfg: cfg, http: hc}
}

func (c *SMSClient) Enabled() bool { return c != nil && c.cfg.APIKey != "" }

// NormalizePhone strips spaces and dashes and turns a local number into
// international form. A leading 0 is the national trunk prefix.
func NormalizePhone(raw, countryCode string) string {
	n := strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(raw))
	if n == "" || strings.HasPrefix(n, "+") {
		return n
	}
	return countryCode + strings.TrimPrefix(n, "0")
}

type smsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *SMSClient) SendSMS(ctx context.Context, to, message string) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	number := NormalizePhone(to, c.cfg.CountryCode)
	if number == "" {
		return fmt.Errorf("send sms: empty recipient")
	}

	body, err := json.Marshal(map[string]string{"to": number, "message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", number, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms to %s: status %d: %s", number, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out smsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("send sms to %s: decode response: %w", number, err)
	}
	if !out.Success {
		return fmt.Errorf("send sms to %s: provider refused: %s", number, out.Message)
	}
	return nil
}
