package source

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hazyhaar/evalwatch/mutation"
)

// envelope is the JSON-lines wire format: one envelope per line.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Replay reads batch envelopes from a JSON-lines stream. Unknown envelope
// types and malformed lines are skipped with a diagnostic, so a partially
// corrupted capture still replays.
type Replay struct {
	ch     chan mutation.Batch
	done   chan struct{}
	once   sync.Once
	closer io.Closer
	logger *slog.Logger
}

// NewReplay starts decoding r in the background.
func NewReplay(r io.Reader, logger *slog.Logger) *Replay {
	if logger == nil {
		logger = slog.Default()
	}
	rp := &Replay{
		ch:     make(chan mutation.Batch, 16),
		done:   make(chan struct{}),
		logger: logger,
	}
	go rp.decode(r)
	return rp
}

// NewReplayFile is NewReplay for a stream that must be closed with the
// source, typically an *os.File.
func NewReplayFile(rc io.ReadCloser, logger *slog.Logger) *Replay {
	rp := NewReplay(rc, logger)
	rp.closer = rc
	return rp
}

// Batches implements Source.
func (r *Replay) Batches() <-chan mutation.Batch { return r.ch }

// Close implements Source. Decoding stops at the next envelope boundary.
func (r *Replay) Close() error {
	r.once.Do(func() { close(r.done) })
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Replay) decode(src io.Reader) {
	defer close(r.ch)

	dec := json.NewDecoder(src)
	for {
		var env envelope
		if err := dec.Decode(&env); err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("source: replay decode failed", "error", err)
			}
			return
		}
		if env.Type != "batch" {
			r.logger.Debug("source: replay skipping envelope", "type", env.Type)
			continue
		}

		var batch mutation.Batch
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			r.logger.Warn("source: replay bad batch", "error", err)
			continue
		}

		select {
		case r.ch <- batch:
		case <-r.done:
			return
		}
	}
}
