// Package email provides email provider interface.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

// NewProvider returns the configured provider, or a no-op sender when email
// is not configured. Notification failures never fail the operation that
// triggered them.
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "":
		return NoopProvider{}, nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be 'resend' or empty")
	}
}

type NoopProvider struct{}

func (NoopProvider) SendEmail(ctx context.Context, email *Email) error {
	return nil
}
