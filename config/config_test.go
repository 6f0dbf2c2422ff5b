package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/evalwatch/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evalwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	if cfg.Autosave.Interval != 30*time.Second {
		t.Errorf("autosave interval = %v, want 30s", cfg.Autosave.Interval)
	}
	if cfg.Submit.Timeout != 10*time.Second {
		t.Errorf("submit timeout = %v, want 10s", cfg.Submit.Timeout)
	}
	if cfg.Selectors.SkillToggles == "" {
		t.Error("selectors not defaulted")
	}
	if cfg.Controls.Submit != ".send_evaluate" {
		t.Errorf("submit control = %q", cfg.Controls.Submit)
	}
	if cfg.Schema.UserID == "" {
		t.Error("schema not defaulted")
	}
	if cfg.Receiver.Labels.Username != "Username" {
		t.Errorf("receiver labels username = %q, want canonical default", cfg.Receiver.Labels.Username)
	}

	opts := cfg.SliderOptions()
	if opts.Min != 1 || opts.Max != 7 || opts.Value != 4 {
		t.Errorf("slider options = %+v, want 1..7 at 4", opts)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
page:
  id: survey-1
  url: https://example.com/chat
autosave:
  interval: 45s
submit:
  url: https://collector.example.com/api/submit
  timeout: 3s
schema:
  user_id: ".custom-uid input"
slider:
  min: 1
  max: 10
  value: 5
receiver:
  addr: ":9000"
  labels:
    username: "Имя пользователя"
    relevant_suffix: " (актуально)"
`)

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Page.URL != "https://example.com/chat" {
		t.Errorf("page url = %q", cfg.Page.URL)
	}
	if cfg.Autosave.Interval != 45*time.Second {
		t.Errorf("interval = %v, want 45s", cfg.Autosave.Interval)
	}
	if cfg.Submit.URL != "https://collector.example.com/api/submit" {
		t.Errorf("submit url = %q", cfg.Submit.URL)
	}
	if cfg.Submit.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Submit.Timeout)
	}

	// Overridden selector sticks, untouched ones fall back.
	if cfg.Schema.UserID != ".custom-uid input" {
		t.Errorf("schema user_id = %q", cfg.Schema.UserID)
	}
	if cfg.Schema.SessionID != ".chatbot-id input" {
		t.Errorf("schema session_id = %q, want canonical default", cfg.Schema.SessionID)
	}

	if got := cfg.SliderOptions(); got.Max != 10 || got.Value != 5 {
		t.Errorf("slider options = %+v", got)
	}
	if cfg.Receiver.Addr != ":9000" {
		t.Errorf("receiver addr = %q", cfg.Receiver.Addr)
	}
	if cfg.Receiver.DBPath != "evalwatch.db" {
		t.Errorf("receiver db path = %q, want default", cfg.Receiver.DBPath)
	}

	// Overridden labels stick, untouched ones keep the canonical headings.
	if cfg.Receiver.Labels.Username != "Имя пользователя" {
		t.Errorf("labels username = %q", cfg.Receiver.Labels.Username)
	}
	if cfg.Receiver.Labels.RelevantSuffix != " (актуально)" {
		t.Errorf("labels relevant suffix = %q", cfg.Receiver.Labels.RelevantSuffix)
	}
	if cfg.Receiver.Labels.Discipline != "Discipline" {
		t.Errorf("labels discipline = %q, want canonical default", cfg.Receiver.Labels.Discipline)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := config.LoadFile("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfig(t, "page: [broken")
	if _, err := config.LoadFile(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
