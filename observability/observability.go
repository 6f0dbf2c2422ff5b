// Package observability keeps an operational journal for the receiver
// service: one row per submission outcome, plus periodic liveness
// heartbeats with runtime metrics. Everything lands in the same SQLite
// database as the records themselves, so one file tells the whole story
// of a collection run.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/hazyhaar/evalwatch/idgen"
)

// Schema is the DDL for the journal tables.
const Schema = `
CREATE TABLE IF NOT EXISTS submission_events (
    event_id   TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    user_id    TEXT,
    session_id TEXT,
    detail     TEXT,
    success    INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submission_events_time
    ON submission_events(created_at DESC);

CREATE TABLE IF NOT EXISTS service_heartbeats (
    heartbeat_id     TEXT PRIMARY KEY,
    service_name     TEXT NOT NULL,
    hostname         TEXT NOT NULL,
    pid              INTEGER NOT NULL,
    timestamp        INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb  REAL,
    memory_sys_mb    REAL,
    gc_count         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_service_heartbeats_time
    ON service_heartbeats(service_name, timestamp DESC);
`

// Init applies the journal schema.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("observability: schema: %w", err)
	}
	return nil
}

// Event is one submission outcome.
type Event struct {
	Type      string // "record_stored", "record_rejected"
	UserID    string
	SessionID string
	Detail    string
	Success   bool
}

// Journal writes submission events. Write failures are logged, never
// propagated: a broken journal must not block the submission path.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalIDs sets a custom event ID generator.
func WithJournalIDs(gen idgen.Generator) JournalOption {
	return func(j *Journal) { j.newID = gen }
}

// WithJournalLogger sets a custom logger.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// NewJournal creates a Journal on a database that has the schema applied.
func NewJournal(db *sql.DB, opts ...JournalOption) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Record writes one event row.
func (j *Journal) Record(ctx context.Context, ev Event) {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO submission_events (
			event_id, event_type, user_id, session_id, detail, success, created_at
		) VALUES (?,?,?,?,?,?,?)`,
		j.newID(), ev.Type, ev.UserID, ev.SessionID, ev.Detail, ev.Success, time.Now().Unix())
	if err != nil {
		j.logger.Error("observability: event write failed", "event_type", ev.Type, "error", err)
	}
}

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics reads current Go runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / (1 << 20),
		MemorySysMB:     float64(mem.Sys) / (1 << 20),
		GCCount:         mem.NumGC,
	}
}

// HeartbeatWriter writes periodic liveness probes.
type HeartbeatWriter struct {
	db       *sql.DB
	service  string
	hostname string
	pid      int
	interval time.Duration
	newID    idgen.Generator
	logger   *slog.Logger
}

// NewHeartbeatWriter creates a writer. Recommended interval: 15s.
func NewHeartbeatWriter(db *sql.DB, service string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:       db,
		service:  service,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		newID:    idgen.Prefixed("hb_", idgen.Default),
		logger:   slog.Default(),
	}
}

// WriteHeartbeat writes a single heartbeat row with current runtime metrics.
func (hw *HeartbeatWriter) WriteHeartbeat() error {
	m := CollectRuntimeMetrics()
	_, err := hw.db.Exec(`
		INSERT INTO service_heartbeats (
			heartbeat_id, service_name, hostname, pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		hw.newID(), hw.service, hw.hostname, hw.pid, time.Now().Unix(),
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("observability: heartbeat: %w", err)
	}
	return nil
}

// Start launches the heartbeat loop: one immediate write, then one per
// interval until ctx is cancelled.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(hw.interval)
		defer ticker.Stop()

		if err := hw.WriteHeartbeat(); err != nil {
			hw.logger.Error("observability: heartbeat failed", "service", hw.service, "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := hw.WriteHeartbeat(); err != nil {
					hw.logger.Error("observability: heartbeat failed", "service", hw.service, "error", err)
				}
			}
		}
	}()
}

// RetentionConfig specifies per-table retention in days. Zero disables
// cleanup for that table.
type RetentionConfig struct {
	EventsDays     int
	HeartbeatsDays int
}

// Cleanup deletes journal rows older than the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()
	for _, t := range []struct {
		table string
		days  int
	}{
		{"submission_events", cfg.EventsDays},
		{"service_heartbeats", cfg.HeartbeatsDays},
	} {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days)*86_400
		col := "created_at"
		if t.table == "service_heartbeats" {
			col = "timestamp"
		}
		if _, err := db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.table, col), cutoff); err != nil {
			return fmt.Errorf("observability: cleanup %s: %w", t.table, err)
		}
	}
	return nil
}
