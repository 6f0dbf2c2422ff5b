// Package transport delivers extraction records to the receiver endpoint.
//
// Delivery is best-effort by design: one POST per record, no retry, no
// queue. A failed submission surfaces as at most one user-visible alert
// (when notifications are enabled) and the record is dropped.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/evalwatch/extract"
)

const (
	msgSendFailed    = "Failed to send data to the server. Please try again later."
	msgUnknownStatus = "Unknown response status from the server."
	msgServerError   = "Server error: "
)

// Notifier shows a user-visible alert. The live browser source maps this
// onto the page's alert dialog; headless runs log it.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string) { f(message) }

// LogNotifier routes alerts to a structured logger.
func LogNotifier(l *slog.Logger) Notifier {
	return NotifierFunc(func(msg string) {
		l.Info("transport: alert", "message", msg)
	})
}

// Client posts serialized records to a single endpoint.
type Client struct {
	url      string
	client   *http.Client
	notifier Notifier
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithNotifier sets the alert sink. Default: log-backed.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client targeting url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.notifier == nil {
		c.notifier = LogNotifier(c.logger)
	}
	return c
}

// response is the discriminated document the receiver answers with.
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Submit sends one record. When notify is true, exactly one alert is shown
// per call: the server's success message, a server error detail, or a
// generic failure/unknown-status message. The error return mirrors the
// alert for callers that log instead.
func (c *Client) Submit(ctx context.Context, rec *extract.Record, notify bool) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("transport: marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.alert(notify, msgSendFailed)
		return fmt.Errorf("transport: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.alert(notify, msgSendFailed)
		return fmt.Errorf("transport: status %d", resp.StatusCode)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		c.alert(notify, msgSendFailed)
		return fmt.Errorf("transport: decode response: %w", err)
	}

	switch r.Status {
	case "success":
		c.logger.Debug("transport: record accepted", "message", r.Message)
		c.alert(notify, r.Message)
		return nil
	case "error":
		c.alert(notify, msgServerError+r.Error)
		return fmt.Errorf("transport: server error: %s", r.Error)
	default:
		c.alert(notify, msgUnknownStatus)
		return fmt.Errorf("transport: unknown response status %q", r.Status)
	}
}

func (c *Client) alert(notify bool, msg string) {
	if notify {
		c.notifier.Notify(msg)
	}
}
