package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
}

// resend-go reports API failures as bare strings, so the HTTP status is
// captured on the way back through the transport.
type statusKey struct{}

type statusRecorder struct {
	next http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// NewResendSender creates a sender. baseURL overrides the API endpoint and is
// only set for local mocks and tests.
func NewResendSender(apiKey, baseURL string) (*ResendSender, error) {
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: statusRecorder{next: http.DefaultTransport},
	}
	client := resend.NewCustomClient(httpClient, strings.TrimSpace(apiKey))

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing resend base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &ResendSender{client: client}, nil
}

func (s *ResendSender) Name() string { return "resend" }

// Send submits one message. Rejections in the 4xx range other than 429 are
// returned as permanent errors: retrying them cannot succeed and they say
// nothing about provider health.
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	}

	var status int
	sent, err := s.client.Emails.SendWithContext(context.WithValue(ctx, statusKey{}, &status), params)
	if err != nil {
		err = fmt.Errorf("resend: %w", err)

		var missing *resend.MissingRequiredFieldsError
		if isClientRejection(status) || errors.As(err, &missing) {
			return "", Permanent(err)
		}
		return "", err
	}
	return sent.Id, nil
}

func isClientRejection(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
