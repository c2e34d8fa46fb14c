// Package messenger sends outbound SMS through the provider's message API.
// Delivery is best-effort: sends happen after the inbound processing result
// is already decided, and failures are logged, never propagated.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/daybook/server/internal/config"
)

const (
	sendTimeout   = 10 * time.Second
	retryBase     = 500 * time.Millisecond
	retryAttempts = 2 // retries after the first attempt
)

// Sender delivers one message body to one phone number.
type Sender interface {
	Send(ctx context.Context, toPhone, body string) error
}

// SurgeClient is a stateless client for POST /accounts/{id}/messages.
type SurgeClient struct {
	baseURL       string
	accountID     string
	phoneNumberID string
	apiKey        string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewSurgeClient creates a provider client from configuration.
func NewSurgeClient(cfg *config.Config, logger *slog.Logger) *SurgeClient {
	return &SurgeClient{
		baseURL:       cfg.SurgeAPIBase,
		accountID:     cfg.SurgeAccountID,
		phoneNumberID: cfg.SurgePhoneNumberID,
		apiKey:        cfg.SurgeAPIKey,
		httpClient:    &http.Client{Timeout: sendTimeout},
		logger:        logger.With("component", "messenger"),
	}
}

type sendRequest struct {
	Conversation struct {
		Contact struct {
			PhoneNumber string `json:"phone_number"`
		} `json:"contact"`
		PhoneNumber struct {
			ID string `json:"id"`
		} `json:"phone_number"`
	} `json:"conversation"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

// Send posts the message, retrying transient failures with exponential
// backoff. 4xx responses are not retried; the request will not get better.
func (c *SurgeClient) Send(ctx context.Context, toPhone, body string) error {
	req := sendRequest{Body: body, Attachments: []string{}}
	req.Conversation.Contact.PhoneNumber = toPhone
	req.Conversation.PhoneNumber.ID = c.phoneNumberID

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/messages", c.baseURL, c.accountID)

	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send message: %w", err))
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.RetryableError(fmt.Errorf("provider returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}
	})
}
