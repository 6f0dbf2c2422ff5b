package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/evalwatch/extract"
	"github.com/hazyhaar/evalwatch/transport"
)

type alertRecorder struct {
	alerts []string
}

func (a *alertRecorder) Notify(msg string) { a.alerts = append(a.alerts, msg) }

func record() *extract.Record {
	return &extract.Record{
		UserID:    "u-1",
		SessionID: "s-1",
		EduGroups: []extract.Group{},
	}
}

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var rec extract.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("request body not a record: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitSuccess(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":"success","message":"data received and stored"}`)
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(alerts.alerts))
	}
	if alerts.alerts[0] != "data received and stored" {
		t.Fatalf("alert = %q, want the server message", alerts.alerts[0])
	}
}

func TestSubmitServerError(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":"error","error":"user_id missing"}`)
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	err := c.Submit(context.Background(), record(), true)
	if err == nil {
		t.Fatal("expected error for error status")
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.alerts))
	}
	if want := "Server error: user_id missing"; alerts.alerts[0] != want {
		t.Fatalf("alert = %q, want %q", alerts.alerts[0], want)
	}
}

func TestSubmitUnknownStatus(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":"partial"}`)
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), true); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0] != "Unknown response status from the server." {
		t.Fatalf("alerts = %v", alerts.alerts)
	}
}

func TestSubmitNon2xx(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway, "bad gateway")
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), true); err == nil {
		t.Fatal("expected error for 502")
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0] != "Failed to send data to the server. Please try again later." {
		t.Fatalf("alerts = %v", alerts.alerts)
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	srv := newServer(t, http.StatusOK, `not json`)
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), true); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.alerts))
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), true); err == nil {
		t.Fatal("expected error for refused connection")
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.alerts))
	}
}

func TestSubmitConfiguredTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"status":"success","message":"stored"}`))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL,
		transport.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
		transport.WithNotifier(alerts),
	)

	if err := c.Submit(context.Background(), record(), true); err == nil {
		t.Fatal("expected timeout error from the configured client")
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0] != "Failed to send data to the server. Please try again later." {
		t.Fatalf("alerts = %v", alerts.alerts)
	}
}

func TestSubmitSilent(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":"success","message":"stored"}`)
	alerts := &alertRecorder{}
	c := transport.NewClient(srv.URL, transport.WithNotifier(alerts))

	if err := c.Submit(context.Background(), record(), false); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(alerts.alerts) != 0 {
		t.Fatalf("silent submit raised %d alerts", len(alerts.alerts))
	}
}
