package canvas

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchbook/internal/domain"
)

var _ domain.Canvas = (*Document)(nil)
var _ domain.Quiescer = (*Document)(nil)
var _ domain.Versioned = (*Document)(nil)

type recorder struct {
	mu     sync.Mutex
	events []domain.MutationEvent
}

func (r *recorder) handle(ev domain.MutationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []domain.MutationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MutationEvent(nil), r.events...)
}

func newDoc(t *testing.T, opts ...Option) *Document {
	t.Helper()
	d := New(opts...)
	t.Cleanup(d.Close)
	return d
}

// ─────────────────────────────────────────────────────────────
// Snapshot round trip
// ─────────────────────────────────────────────────────────────

func TestRoundTrip(t *testing.T) {
	src := newDoc(t)
	_, err := src.AddShape(Shape{ID: "a", Kind: KindRect, X: 1, Y: 2, Width: 10, Height: 5, Color: "#f00"})
	require.NoError(t, err)
	_, err = src.AddShape(Shape{ID: "b", Kind: KindFreehand, Points: [][2]float64{{0, 0}, {3, 4}}})
	require.NoError(t, err)
	_, err = src.AddShape(Shape{ID: "c", Kind: KindText, Text: "hello"})
	require.NoError(t, err)
	require.NoError(t, src.RemoveShape("a"))
	require.NoError(t, src.SetCamera(Camera{X: 5, Y: -3, Zoom: 2}))

	snap, err := src.Serialize()
	require.NoError(t, err)

	dst := newDoc(t)
	require.NoError(t, dst.Replace(snap))
	again, err := dst.Serialize()
	require.NoError(t, err)

	assert.JSONEq(t, string(snap), string(again))
	assert.Equal(t, src.Shapes(), dst.Shapes())
	assert.Equal(t, Camera{X: 5, Y: -3, Zoom: 2}, dst.Camera())

	// New shapes stack above the restored ones
	added, err := dst.AddShape(Shape{Kind: KindEllipse})
	require.NoError(t, err)
	assert.Equal(t, 3, added.Index)
	assert.NotEmpty(t, added.ID)
}

func TestReplace_InvalidLeavesDocumentUntouched(t *testing.T) {
	d := newDoc(t)
	_, err := d.AddShape(Shape{ID: "keep", Kind: KindRect})
	require.NoError(t, err)
	before, err := d.Serialize()
	require.NoError(t, err)
	version := d.Version()

	for name, snap := range map[string]domain.Snapshot{
		"not json":       `{"schema":1,"shapes":[`,
		"empty":          ``,
		"wrong schema":   `{"schema":2,"shapes":[]}`,
		"unknown kind":   `{"schema":1,"shapes":[{"id":"x","kind":"hexagon","x":0,"y":0}]}`,
		"missing shapes": `{"schema":1}`,
		"duplicate id":   `{"schema":1,"shapes":[{"id":"x","kind":"rect","x":0,"y":0},{"id":"x","kind":"rect","x":1,"y":1}]}`,
		"zero zoom":      `{"schema":1,"shapes":[],"camera":{"x":0,"y":0,"zoom":0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := d.Replace(snap)
			assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
			after, err := d.Serialize()
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, version, d.Version())
		})
	}
}

func TestClear(t *testing.T) {
	d := newDoc(t)
	_, err := d.AddShape(Shape{Kind: KindLine})
	require.NoError(t, err)
	require.NoError(t, d.SetCamera(Camera{Zoom: 3}))

	d.Clear()
	assert.Empty(t, d.Shapes())
	assert.Equal(t, DefaultCamera, d.Camera())
}

func TestEditingErrors(t *testing.T) {
	d := newDoc(t)
	_, err := d.AddShape(Shape{Kind: "blob"})
	assert.ErrorIs(t, err, ErrInvalidShape)
	assert.ErrorIs(t, d.UpdateShape(Shape{ID: "nope"}), ErrShapeNotFound)
	assert.ErrorIs(t, d.RemoveShape("nope"), ErrShapeNotFound)
	assert.Error(t, d.SetCamera(Camera{Zoom: -1}))

	s, err := d.AddShape(Shape{ID: "s", Kind: KindRect, Width: 1})
	require.NoError(t, err)
	require.NoError(t, d.UpdateShape(Shape{ID: "s", Width: 9}))
	got := d.Shapes()[0]
	assert.Equal(t, KindRect, got.Kind)
	assert.Equal(t, 9.0, got.Width)
	assert.Equal(t, s.Index, got.Index)
}

// ─────────────────────────────────────────────────────────────
// Mutation events
// ─────────────────────────────────────────────────────────────

func TestEvents_SourceAndScope(t *testing.T) {
	d := newDoc(t, WithBatchWindow(0))
	rec := &recorder{}
	d.Subscribe(rec.handle)

	_, err := d.AddShape(Shape{Kind: KindRect})
	require.NoError(t, err)
	require.NoError(t, d.Quiesce(context.Background()))
	require.NoError(t, d.SetCamera(Camera{Zoom: 2}))
	require.NoError(t, d.Quiesce(context.Background()))
	d.Clear()
	require.NoError(t, d.Quiesce(context.Background()))

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, domain.MutationEvent{Source: domain.SourceUser, Scope: domain.ScopeDocument, Changes: 1}, events[0])
	assert.Equal(t, domain.ScopeSession, events[1].Scope)
	assert.Equal(t, domain.SourceProgrammatic, events[2].Source)
	assert.Equal(t, domain.ScopeDocument, events[2].Scope)
}

func TestEvents_BatchedAndCoalesced(t *testing.T) {
	d := newDoc(t, WithBatchWindow(30*time.Millisecond))
	rec := &recorder{}
	d.Subscribe(rec.handle)

	for i := 0; i < 5; i++ {
		_, err := d.AddShape(Shape{Kind: KindRect})
		require.NoError(t, err)
	}
	assert.Empty(t, rec.all(), "delivery is asynchronous")

	require.NoError(t, d.Quiesce(context.Background()))
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].Changes)
}

func TestEvents_HandlerMayReadDocument(t *testing.T) {
	d := newDoc(t, WithBatchWindow(0))
	got := make(chan int, 1)
	d.Subscribe(func(domain.MutationEvent) {
		got <- len(d.Shapes())
	})

	_, err := d.AddShape(Shape{Kind: KindRect})
	require.NoError(t, err)
	select {
	case n := <-got:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestUnsubscribe(t *testing.T) {
	d := newDoc(t, WithBatchWindow(0))
	rec := &recorder{}
	unsubscribe := d.Subscribe(rec.handle)
	unsubscribe()

	_, err := d.AddShape(Shape{Kind: KindRect})
	require.NoError(t, err)
	require.NoError(t, d.Quiesce(context.Background()))
	assert.Empty(t, rec.all())
}

func TestQuiesce(t *testing.T) {
	d := newDoc(t, WithBatchWindow(50*time.Millisecond))
	require.NoError(t, d.Quiesce(context.Background()), "nothing queued")

	_, err := d.AddShape(Shape{Kind: KindRect})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Quiesce(ctx), context.DeadlineExceeded)

	require.NoError(t, d.Quiesce(context.Background()))

	d.Close()
	assert.ErrorIs(t, d.Quiesce(context.Background()), ErrClosed)
}

func TestVersion_IgnoresCamera(t *testing.T) {
	d := newDoc(t)
	v := d.Version()
	require.NoError(t, d.SetCamera(Camera{Zoom: 4}))
	assert.Equal(t, v, d.Version())
	_, err := d.AddShape(Shape{Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, v+1, d.Version())
}
