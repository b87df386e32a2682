package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"sketchbook/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// DebouncedWriter: coalesces bursts into one write per key
// ─────────────────────────────────────────────────────────────

// WriteFunc persists payload for key. seq is the enqueue-time sequence of
// the payload and grows with every Schedule call on the same writer.
type WriteFunc func(ctx context.Context, key, payload string, seq int64) error

// SavingEvent is emitted as "sync:saving" when a writer starts or stops
// having writes in flight.
type SavingEvent struct {
	Target string `json:"target"`
	Saving bool   `json:"saving"`
}

// DebouncedWriter turns a high-frequency stream of full-document payloads
// into a low-frequency write stream. Each key has its own quiet period
// timer; only the latest payload scheduled for a key is written.
type DebouncedWriter struct {
	name    string
	write   WriteFunc
	emitter EventEmitter
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	quiet  time.Duration
	seq    int64
	keys   map[string]*pendingWrite
	saving int
	closed bool

	inflight runningJobsGuard
}

type pendingWrite struct {
	debounced func(f func())
	quiet     time.Duration
	payload   string
	seq       int64
	dirty     bool // payload not yet handed to write
	refire    bool // timer expired while a write was in flight
}

type WriterOption func(*DebouncedWriter)

func WithEmitter(e EventEmitter) WriterOption {
	return func(w *DebouncedWriter) { w.emitter = e }
}

func WithLogger(l *slog.Logger) WriterOption {
	return func(w *DebouncedWriter) { w.logger = l }
}

// WithWriteTimeout bounds each call to the WriteFunc.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *DebouncedWriter) { w.timeout = d }
}

// NewDebouncedWriter creates a writer named name (used as the saving target).
// Sequence numbers start from the current wall clock so they keep growing
// across restarts.
func NewDebouncedWriter(name string, quiet time.Duration, write WriteFunc, opts ...WriterOption) *DebouncedWriter {
	w := &DebouncedWriter{
		name:    name,
		write:   write,
		quiet:   quiet,
		timeout: 10 * time.Second,
		seq:     time.Now().UnixNano(),
		keys:    make(map[string]*pendingWrite),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "writer", "target", name)
	return w
}

// Schedule replaces the pending payload for key and restarts its quiet
// period. It returns the sequence assigned to payload, or 0 once closed.
func (w *DebouncedWriter) Schedule(key, payload string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0
	}
	w.seq++
	pw, ok := w.keys[key]
	if !ok {
		pw = &pendingWrite{}
		w.keys[key] = pw
	}
	if pw.debounced == nil || pw.quiet != w.quiet {
		pw.debounced = debounce.New(w.quiet)
		pw.quiet = w.quiet
	}
	pw.payload = payload
	pw.seq = w.seq
	pw.dirty = true
	pw.debounced(func() { w.fire(key, pw) })
	return pw.seq
}

// Latest returns the newest payload for key that has not been committed
// yet, including one whose write is still in flight.
func (w *DebouncedWriter) Latest(key string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pw, ok := w.keys[key]
	if !ok {
		return "", false
	}
	return pw.payload, true
}

// Pending reports whether key has a payload waiting for its timer.
func (w *DebouncedWriter) Pending(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	pw, ok := w.keys[key]
	return ok && pw.dirty
}

// Cancel drops the pending payload for key. A write already in flight
// still completes.
func (w *DebouncedWriter) Cancel(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.keys, key)
}

// Discard drops the pending payload for key and waits for a write of key
// already in flight, so a write issued afterwards lands last.
func (w *DebouncedWriter) Discard(ctx context.Context, key string) error {
	w.Cancel(key)
	return w.inflight.Wait(ctx, key)
}

// SetQuiet changes the quiet period for payloads scheduled from now on.
func (w *DebouncedWriter) SetQuiet(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quiet = d
}

// Saving reports whether any write of this writer is in flight.
func (w *DebouncedWriter) Saving() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saving > 0
}

// Close drops every pending payload without writing it and waits for
// in-flight writes until ctx is done.
func (w *DebouncedWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.keys = make(map[string]*pendingWrite)
	w.mu.Unlock()
	return w.inflight.WaitAll(ctx)
}

func (w *DebouncedWriter) fire(key string, pw *pendingWrite) {
	w.mu.Lock()
	if w.closed || w.keys[key] != pw || !pw.dirty {
		w.mu.Unlock()
		return
	}
	if !w.inflight.TryLock(key) {
		pw.refire = true
		w.mu.Unlock()
		return
	}
	payload, seq := pw.payload, pw.seq
	pw.dirty = false
	pw.refire = false
	w.saving++
	started := w.saving == 1
	w.mu.Unlock()

	if started {
		w.emit(true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	err := w.write(ctx, key, payload, seq)
	cancel()
	switch {
	case err == nil:
		w.logger.Debug("write committed", "key", key, "seq", seq, "bytes", len(payload))
	case errors.Is(err, domain.ErrStaleWrite):
		w.logger.Debug("write superseded", "key", key, "seq", seq)
	default:
		w.logger.Warn("write failed", "key", key, "seq", seq, "error", err)
	}

	w.mu.Lock()
	w.saving--
	stopped := w.saving == 0
	// The entry for key may have been replaced by Cancel and Schedule while
	// the write ran; its timer may have expired in the meantime too.
	next := w.keys[key]
	refire := false
	switch {
	case next == nil:
	case next.dirty:
		refire = next.refire
	case next == pw:
		delete(w.keys, key)
	}
	w.mu.Unlock()
	w.inflight.Unlock(key)

	if stopped {
		w.emit(false)
	}
	if refire {
		w.fire(key, next)
	}
}

func (w *DebouncedWriter) emit(saving bool) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(context.Background(), "sync:saving", SavingEvent{Target: w.name, Saving: saving})
}
