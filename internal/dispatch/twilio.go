package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"consentd/internal/contact"
	"consentd/internal/sentinel"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioDispatcher sends SMS consent requests through the Twilio Messages API.
type TwilioDispatcher struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

var _ Dispatcher = (*TwilioDispatcher)(nil)

// TwilioOption configures the TwilioDispatcher.
type TwilioOption func(*TwilioDispatcher)

// WithTwilioBaseURL overrides the API endpoint (for testing).
func WithTwilioBaseURL(baseURL string) TwilioOption {
	return func(d *TwilioDispatcher) {
		d.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTwilioHTTPClient sets a custom HTTP client.
func WithTwilioHTTPClient(client *http.Client) TwilioOption {
	return func(d *TwilioDispatcher) {
		d.httpClient = client
	}
}

// NewTwilio creates an SMS dispatcher backed by Twilio.
func NewTwilio(accountSID, authToken, fromNumber string, timeout time.Duration, opts ...TwilioOption) *TwilioDispatcher {
	d := &TwilioDispatcher{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultTwilioBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *TwilioDispatcher) Name() string { return "twilio" }

func (d *TwilioDispatcher) Send(ctx context.Context, target contact.Ref, payload Payload) error {
	form := url.Values{}
	form.Set("To", target.Value)
	form.Set("From", d.fromNumber)
	form.Set("Body", RenderBody(payload))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", d.baseURL, d.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.accountSID, d.authToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("twilio returned %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), sentinel.ErrUnavailable)
	}
	return nil
}
