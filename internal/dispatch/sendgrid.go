package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"consentd/internal/contact"
	"consentd/internal/sentinel"
)

const defaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGridDispatcher sends email consent requests through the SendGrid v3
// mail API.
type SendGridDispatcher struct {
	apiKey     string
	fromEmail  string
	baseURL    string
	httpClient *http.Client
}

var _ Dispatcher = (*SendGridDispatcher)(nil)

// SendGridOption configures the SendGridDispatcher.
type SendGridOption func(*SendGridDispatcher)

// WithSendGridBaseURL overrides the API endpoint (for testing).
func WithSendGridBaseURL(baseURL string) SendGridOption {
	return func(d *SendGridDispatcher) {
		d.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithSendGridHTTPClient sets a custom HTTP client.
func WithSendGridHTTPClient(client *http.Client) SendGridOption {
	return func(d *SendGridDispatcher) {
		d.httpClient = client
	}
}

// NewSendGrid creates an email dispatcher backed by SendGrid.
func NewSendGrid(apiKey, fromEmail string, timeout time.Duration, opts ...SendGridOption) *SendGridDispatcher {
	d := &SendGridDispatcher{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		baseURL:    defaultSendGridBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *SendGridDispatcher) Name() string { return "sendgrid" }

type sendGridMail struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (d *SendGridDispatcher) Send(ctx context.Context, target contact.Ref, payload Payload) error {
	mail := sendGridMail{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: target.Value, Name: target.Name}}},
		},
		From:    sendGridAddress{Email: d.fromEmail},
		Subject: RenderSubject(payload),
		Content: []sendGridContent{{Type: "text/plain", Value: RenderBody(payload)}},
	}
	body, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("marshal sendgrid mail: %w", err)
	}

	endpoint := d.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sendgrid returned %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(respBody)), sentinel.ErrUnavailable)
	}
	return nil
}
