package canvas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sketchbook/internal/domain"
)

var (
	ErrShapeNotFound = errors.New("shape not found")
	ErrInvalidShape  = errors.New("invalid shape")
	ErrClosed        = errors.New("canvas closed")
)

type ShapeKind string

const (
	KindRect     ShapeKind = "rect"
	KindEllipse  ShapeKind = "ellipse"
	KindLine     ShapeKind = "line"
	KindArrow    ShapeKind = "arrow"
	KindText     ShapeKind = "text"
	KindFreehand ShapeKind = "freehand"
)

func (k ShapeKind) valid() bool {
	switch k {
	case KindRect, KindEllipse, KindLine, KindArrow, KindText, KindFreehand:
		return true
	}
	return false
}

// Shape is one drawable element. Index is the z-order, assigned on insert.
type Shape struct {
	ID       string       `json:"id"`
	Kind     ShapeKind    `json:"kind"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Width    float64      `json:"width,omitempty"`
	Height   float64      `json:"height,omitempty"`
	Rotation float64      `json:"rotation,omitempty"`
	Text     string       `json:"text,omitempty"`
	Color    string       `json:"color,omitempty"`
	Points   [][2]float64 `json:"points,omitempty"`
	Index    int          `json:"index"`
}

// Camera is the viewport. Changing it is session-scoped and never persisted on its own.
type Camera struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

var DefaultCamera = Camera{Zoom: 1}

// DefaultBatchWindow approximates one render frame.
const DefaultBatchWindow = 16 * time.Millisecond

// Document is an in-memory shape document implementing domain.Canvas.
//
// Mutation events are queued while the document lock is held and delivered
// later, in batches, on a dispatcher goroutine. Handlers therefore never run
// inside a mutating call and may call back into the document. Quiesce
// reports when everything queued so far has been delivered.
type Document struct {
	mu        sync.Mutex
	shapes    map[string]Shape
	camera    Camera
	nextIndex int
	version   uint64

	pending   []domain.MutationEvent
	queued    uint64
	delivered uint64
	waiters   []quiesceWaiter
	closed    bool

	batch     time.Duration
	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int
}

type quiesceWaiter struct {
	upto uint64
	ch   chan struct{}
}

type subscription struct {
	handler domain.MutationHandler
	active  atomic.Bool
}

type Option func(*Document)

// WithBatchWindow sets how long the dispatcher collects events before
// delivering them. Zero delivers as soon as the dispatcher wakes.
func WithBatchWindow(d time.Duration) Option {
	return func(doc *Document) { doc.batch = d }
}

// New creates an empty document and starts its dispatcher.
func New(opts ...Option) *Document {
	d := &Document{
		shapes:  make(map[string]Shape),
		camera:  DefaultCamera,
		batch:   DefaultBatchWindow,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[int]*subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.dispatch()
	return d
}

// Close stops the dispatcher. Events not yet delivered are dropped.
func (d *Document) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		<-d.stopped
	})
}

// ── Editing (user-sourced) ─────────────────────────────────

// AddShape inserts s on top of the z-order and returns it with its id and index set.
func (d *Document) AddShape(s Shape) (Shape, error) {
	if !s.Kind.valid() {
		return Shape{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, s.Kind)
	}
	if s.Width < 0 || s.Height < 0 {
		return Shape{}, fmt.Errorf("%w: negative size", ErrInvalidShape)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := d.shapes[s.ID]; exists {
		return Shape{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidShape, s.ID)
	}
	s.Index = d.nextIndex
	d.nextIndex++
	d.shapes[s.ID] = s
	d.version++
	d.record(domain.SourceUser, domain.ScopeDocument, 1)
	return s, nil
}

// UpdateShape replaces the shape with s.ID, keeping its z-order. An empty
// Kind keeps the existing kind.
func (d *Document) UpdateShape(s Shape) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.shapes[s.ID]
	if !ok {
		return fmt.Errorf("update %s: %w", s.ID, ErrShapeNotFound)
	}
	if s.Kind == "" {
		s.Kind = cur.Kind
	}
	if !s.Kind.valid() || s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("update %s: %w", s.ID, ErrInvalidShape)
	}
	s.Index = cur.Index
	d.shapes[s.ID] = s
	d.version++
	d.record(domain.SourceUser, domain.ScopeDocument, 1)
	return nil
}

func (d *Document) RemoveShape(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.shapes[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrShapeNotFound)
	}
	delete(d.shapes, id)
	d.version++
	d.record(domain.SourceUser, domain.ScopeDocument, 1)
	return nil
}

func (d *Document) SetCamera(c Camera) error {
	if c.Zoom <= 0 {
		return fmt.Errorf("camera zoom must be positive, got %v", c.Zoom)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.camera = c
	d.record(domain.SourceUser, domain.ScopeSession, 1)
	return nil
}

// ── Reading ────────────────────────────────────────────────

// Shapes returns the shapes in z-order.
func (d *Document) Shapes() []Shape {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedShapes(d.shapes)
}

func (d *Document) Camera() Camera {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.camera
}

// Version counts document-scope mutations from any source.
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// ── domain.Canvas ──────────────────────────────────────────

func (d *Document) Serialize() (domain.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encode(d.shapes, d.camera)
}

// Replace installs snap as a programmatic change. An invalid snapshot
// leaves the document untouched and returns an error wrapping
// domain.ErrInvalidSnapshot.
func (d *Document) Replace(snap domain.Snapshot) error {
	shapes, cam, err := decode(snap)
	if err != nil {
		return err
	}
	next := 0
	for _, sh := range shapes {
		if sh.Index >= next {
			next = sh.Index + 1
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	changes := max(len(d.shapes), len(shapes), 1)
	d.shapes = shapes
	d.camera = cam
	d.nextIndex = next
	d.version++
	d.record(domain.SourceProgrammatic, domain.ScopeDocument, changes)
	d.record(domain.SourceProgrammatic, domain.ScopeSession, 1)
	return nil
}

// Clear empties the document and resets the camera as a programmatic change.
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	changes := max(len(d.shapes), 1)
	d.shapes = make(map[string]Shape)
	d.camera = DefaultCamera
	d.nextIndex = 0
	d.version++
	d.record(domain.SourceProgrammatic, domain.ScopeDocument, changes)
}

// Subscribe registers h for mutation events. After unsubscribe returns,
// h is not invoked for batches that start later.
func (d *Document) Subscribe(h domain.MutationHandler) func() {
	sub := &subscription{handler: h}
	sub.active.Store(true)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = sub
	d.subMu.Unlock()

	return func() {
		sub.active.Store(false)
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

// Quiesce blocks until every event queued before the call has been
// delivered to subscribers.
func (d *Document) Quiesce(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.delivered >= d.queued {
		d.mu.Unlock()
		return nil
	}
	w := quiesceWaiter{upto: d.queued, ch: make(chan struct{})}
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-d.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Dispatch ───────────────────────────────────────────────

// record queues an event. Caller holds d.mu.
func (d *Document) record(src domain.MutationSource, scope domain.MutationScope, changes int) {
	if d.closed {
		return
	}
	d.pending = append(d.pending, domain.MutationEvent{Source: src, Scope: scope, Changes: changes})
	d.queued++
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Document) dispatch() {
	defer close(d.stopped)
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		if d.batch > 0 {
			t := time.NewTimer(d.batch)
			select {
			case <-d.done:
				t.Stop()
				return
			case <-t.C:
			}
		}

		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		upto := d.queued
		d.mu.Unlock()

		for _, ev := range coalesce(batch) {
			d.deliver(ev)
		}

		d.mu.Lock()
		d.delivered = upto
		kept := d.waiters[:0]
		for _, w := range d.waiters {
			if w.upto <= upto {
				close(w.ch)
			} else {
				kept = append(kept, w)
			}
		}
		d.waiters = kept
		d.mu.Unlock()
	}
}

func (d *Document) deliver(ev domain.MutationEvent) {
	d.subMu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subMu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(ev)
		}
	}
}

// coalesce merges adjacent events with the same source and scope.
func coalesce(batch []domain.MutationEvent) []domain.MutationEvent {
	var out []domain.MutationEvent
	for _, ev := range batch {
		if n := len(out); n > 0 && out[n-1].Source == ev.Source && out[n-1].Scope == ev.Scope {
			out[n-1].Changes += ev.Changes
			continue
		}
		out = append(out, ev)
	}
	return out
}
