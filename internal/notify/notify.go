// Package notify delivers customer and staff notifications by e-mail and SMS
// and runs them detached from the request that triggered them.
package notify

import (
	"context"
	"errors"
)

// ErrDisabled is returned by a sender that has no credentials configured.
var ErrDisabled = errors.New("notify: sender not configured")

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}
