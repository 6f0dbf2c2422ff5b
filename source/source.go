// Package source produces the mutation batches the tree watcher consumes.
//
// Three implementations: Feed (in-process channel, for embedding and
// tests), Replay (JSON-lines stream, the same envelope format the engine
// can log), and Browser (a live page observed over CDP).
package source

import (
	"sync"

	"github.com/hazyhaar/evalwatch/mutation"
)

// Source is an ordered stream of mutation batches. The channel closes when
// the source is exhausted or closed.
type Source interface {
	Batches() <-chan mutation.Batch
	Close() error
}

// Feed is an in-process Source fed by Publish.
type Feed struct {
	ch   chan mutation.Batch
	once sync.Once
}

// NewFeed creates a Feed with the given channel buffer.
func NewFeed(buffer int) *Feed {
	if buffer < 0 {
		buffer = 0
	}
	return &Feed{ch: make(chan mutation.Batch, buffer)}
}

// Publish delivers one batch to the consumer. Blocks when the buffer is
// full. Must not be called after Close.
func (f *Feed) Publish(b mutation.Batch) {
	f.ch <- b
}

// Batches implements Source.
func (f *Feed) Batches() <-chan mutation.Batch { return f.ch }

// Close implements Source.
func (f *Feed) Close() error {
	f.once.Do(func() { close(f.ch) })
	return nil
}
