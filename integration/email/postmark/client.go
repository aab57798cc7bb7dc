// Package postmark delivers temporary second-factor codes over
// transactional email.
package postmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrz1836/postmark"
)

var (
	// ErrInvalidConfig is returned when required settings are missing.
	// Tokens are validated at construction so a broken mail path fails at
	// startup, not on the first locked-out user.
	ErrInvalidConfig = errors.New("invalid postmark configuration")
	// ErrSendFailed wraps delivery errors.
	ErrSendFailed = errors.New("failed to send email")
)

// Client sends second-factor emails through Postmark.
type Client struct {
	client *postmark.Client
	cfg    Config
}

// New creates the Postmark client.
func New(cfg Config) (*Client, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}
	return &Client{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:    cfg,
	}, nil
}

// SendTempCode emails a one-time login code. The message names the expiry
// so users know how long they have.
func (c *Client) SendTempCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:     c.cfg.SenderEmail,
		To:       email,
		Subject:  "Your Melodix login code",
		Tag:      "temp-code",
		TextBody: fmt.Sprintf("Your one-time login code is %s. It expires in %d minutes. If you did not request it, you can ignore this email.", code, minutes),
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
