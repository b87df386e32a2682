package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchbook/internal/canvas"
	"sketchbook/internal/domain"
	"sketchbook/internal/service"
)

const snapC1 = `{"schema":1,"shapes":[{"id":"c1","kind":"rect","x":1,"y":2,"width":3,"height":4,"index":0}],"camera":{"x":0,"y":0,"zoom":1}}`
const snapC2 = `{"schema":1,"shapes":[{"id":"c2","kind":"text","x":0,"y":0,"text":"hi","index":0}],"camera":{"x":10,"y":10,"zoom":2}}`

var fastTimings = service.SyncTimings{
	ContentQuiet: 40 * time.Millisecond,
	TitleQuiet:   20 * time.Millisecond,
	SettleDelay:  60 * time.Millisecond,
}

type session struct {
	ctrl    *service.SyncController
	doc     *canvas.Document
	store   *memStore
	revs    *memRevisions
	emitter *service.MockEmitter
}

func newSession(t *testing.T, store *memStore, timings service.SyncTimings) *session {
	t.Helper()
	s := &session{
		doc:     canvas.New(canvas.WithBatchWindow(5 * time.Millisecond)),
		store:   store,
		revs:    &memRevisions{},
		emitter: &service.MockEmitter{},
	}
	s.ctrl = service.NewSyncController(service.SyncConfig{
		Canvas:    s.doc,
		Pages:     store,
		Revisions: s.revs,
		Emitter:   s.emitter,
		Logger:    quietLogger(),
		Timings:   timings,
	})
	t.Cleanup(func() {
		s.ctrl.Close(context.Background())
		s.doc.Close()
	})
	return s
}

func (s *session) open(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, s.ctrl.SelectPage(context.Background(), id))
	require.Eventually(t, func() bool {
		st := s.ctrl.Status()
		return st.State == service.StateActive && st.ActivePageID == id
	}, time.Second, 2*time.Millisecond, "page %s never became active", id)
}

func (s *session) draw(t *testing.T, id string) {
	t.Helper()
	_, err := s.doc.AddShape(canvas.Shape{ID: id, Kind: canvas.KindRect, Width: 10, Height: 10})
	require.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────

func TestSync_NoFeedbackLoop(t *testing.T) {
	store := newMemStore(
		pageFixture("p1", "One", snapC1),
		pageFixture("p2", "Two", snapC2),
		pageFixture("p3", "Empty", ""),
		pageFixture("p4", "Broken", "{not json"),
	)
	s := newSession(t, store, fastTimings)

	for _, id := range []string{"p1", "p2", "p3", "p4", "p1"} {
		s.open(t, id)
	}
	// Rapid switches that never settle
	for _, id := range []string{"p2", "p3", "p1", "p4"} {
		require.NoError(t, s.ctrl.SelectPage(context.Background(), id))
	}

	time.Sleep(4 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWrites(), "loads must not be written back")
	assert.Zero(t, s.ctrl.Status().Captured)
	assert.Positive(t, s.ctrl.Status().Ignored)
}

func TestSync_SwitchBackShowsStoredContent(t *testing.T) {
	store := newMemStore(pageFixture("p1", "One", snapC1), pageFixture("p2", "Two", ""))
	s := newSession(t, store, fastTimings)

	s.open(t, "p1")
	first, err := s.doc.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, snapC1, string(first))

	s.open(t, "p2")
	assert.Empty(t, s.doc.Shapes())

	s.open(t, "p1")
	again, err := s.doc.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, snapC1, string(again))

	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWritesFor("p2"))
	assert.Empty(t, store.contentWrites())
}

func TestSync_MalformedContentStartsEmpty(t *testing.T) {
	store := newMemStore(pageFixture("p", "Broken", `{"schema":1,"shapes":[{"id":"x","kind":"blob"}]}`))
	s := newSession(t, store, fastTimings)

	require.NoError(t, s.ctrl.SelectPage(context.Background(), "p"))
	assert.Empty(t, s.doc.Shapes())

	s.open(t, "p")
	s.draw(t, "fresh")
	require.Eventually(t, func() bool { return len(store.contentWritesFor("p")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, store.contentWritesFor("p")[0].Content, `"fresh"`)
}

func TestSync_LoadFailureGoesIdle(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", snapC1))
	boom := errors.New("connection reset")
	store.loadErr["p"] = boom
	s := newSession(t, store, fastTimings)

	err := s.ctrl.SelectPage(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
	st := s.ctrl.Status()
	assert.Equal(t, service.StateIdle, st.State)
	assert.Empty(t, st.ActivePageID)
	assert.Empty(t, s.doc.Shapes())
}

func TestSync_SelectSamePageIsNoop(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", snapC1))
	s := newSession(t, store, fastTimings)

	s.open(t, "p")
	require.NoError(t, s.ctrl.SelectPage(context.Background(), "p"))
	assert.Equal(t, []string{"p"}, store.loadedIDs())
}

func TestSync_StaleLoadIsDropped(t *testing.T) {
	store := newMemStore(pageFixture("slow", "Slow", snapC1), pageFixture("fast", "Fast", snapC2))
	store.loadDelay["slow"] = 80 * time.Millisecond
	s := newSession(t, store, fastTimings)

	slowDone := make(chan error, 1)
	go func() { slowDone <- s.ctrl.SelectPage(context.Background(), "slow") }()
	time.Sleep(10 * time.Millisecond)
	s.open(t, "fast")

	require.NoError(t, <-slowDone)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "fast", s.ctrl.Status().ActivePageID)
	snap, err := s.doc.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, snapC2, string(snap))
}

func TestSync_RepeatSelectWaitsForLoad(t *testing.T) {
	store := newMemStore(pageFixture("slow", "Slow", snapC1))
	store.loadDelay["slow"] = 80 * time.Millisecond
	s := newSession(t, store, fastTimings)

	first := make(chan error, 1)
	go func() { first <- s.ctrl.SelectPage(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return s.ctrl.Status().State == service.StateLoading }, time.Second, time.Millisecond)

	require.NoError(t, s.ctrl.SelectPage(context.Background(), "slow"))
	snap, err := s.doc.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, snapC1, string(snap), "second select returns after the page is installed")

	require.NoError(t, <-first)
	assert.Equal(t, []string{"slow"}, store.loadedIDs())
}

// ─────────────────────────────────────────────────────────────
// Capturing edits
// ─────────────────────────────────────────────────────────────

func TestSync_DebounceCoalescesEdits(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.draw(t, id)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(store.contentWritesFor("p")) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * fastTimings.ContentQuiet)
	writes := store.contentWritesFor("p")
	require.Len(t, writes, 1)

	final, err := s.doc.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, string(final), writes[0].Content)
}

func TestSync_EditPersistsToPageItWasMadeOn(t *testing.T) {
	store := newMemStore(pageFixture("a", "A", ""), pageFixture("b", "B", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "a")

	s.draw(t, "on-a")
	require.NoError(t, s.ctrl.SelectPage(context.Background(), "b"))

	require.Eventually(t, func() bool { return len(store.contentWritesFor("a")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, store.contentWritesFor("a")[0].Content, `"on-a"`)

	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWritesFor("b"))
	assert.Empty(t, s.doc.Shapes())
}

func TestSync_ReloadShowsUncommittedEdit(t *testing.T) {
	store := newMemStore(pageFixture("a", "A", ""), pageFixture("b", "B", ""))
	slow := fastTimings
	slow.ContentQuiet = 400 * time.Millisecond
	s := newSession(t, store, slow)

	s.open(t, "a")
	s.draw(t, "pending")
	s.open(t, "b")
	s.open(t, "a")

	require.Empty(t, store.contentWritesFor("a"), "write still waiting for its quiet period")
	shapes := s.doc.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, "pending", shapes[0].ID)
}

func TestSync_CameraDoesNotSave(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", snapC1))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	require.NoError(t, s.doc.SetCamera(canvas.Camera{X: 50, Y: 50, Zoom: 3}))
	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWrites())

	// Nor is it captured when leaving the page
	s.open(t, "p")
	require.NoError(t, s.ctrl.SelectPage(context.Background(), ""))
	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWrites())
}

func TestSync_RecordsRevisionPerCommittedWrite(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	s.draw(t, "one")
	require.Eventually(t, func() bool { return s.revs.count() == 1 }, time.Second, 5*time.Millisecond)
	s.draw(t, "two")
	require.Eventually(t, func() bool { return s.revs.count() == 2 }, time.Second, 5*time.Millisecond)

	revs, err := s.revs.ListRevisions(context.Background(), "p")
	require.NoError(t, err)
	assert.Greater(t, revs[0].Seq, revs[1].Seq)
}

// ─────────────────────────────────────────────────────────────
// Titles, restore, teardown
// ─────────────────────────────────────────────────────────────

func TestSync_EditTitleDebounced(t *testing.T) {
	store := newMemStore(pageFixture("p", "Old", ""))
	s := newSession(t, store, fastTimings)

	_, err := s.ctrl.EditTitle("x")
	assert.ErrorIs(t, err, service.ErrNoActivePage)

	s.open(t, "p")
	for _, title := range []string{"N", "Ne", "New"} {
		id, err := s.ctrl.EditTitle(title)
		require.NoError(t, err)
		assert.Equal(t, "p", id)
	}
	require.Eventually(t, func() bool { return len(store.titleWrites()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * fastTimings.TitleQuiet)
	assert.Equal(t, []contentWrite{{PageID: "p", Content: "New"}}, store.titleWrites())
	assert.Empty(t, store.contentWrites(), "title edits do not touch content")
}

func TestSync_UnsavedUntilWritten(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")
	assert.False(t, s.ctrl.Status().Unsaved)

	s.draw(t, "fresh")
	require.Eventually(t, func() bool { return s.ctrl.Status().Unsaved }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(store.contentWritesFor("p")) == 1 && !s.ctrl.Status().Unsaved
	}, time.Second, 5*time.Millisecond)
}

func TestSync_Restore(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	err := s.ctrl.Restore(context.Background(), "p", "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
	assert.Empty(t, s.doc.Shapes())

	require.NoError(t, s.ctrl.Restore(context.Background(), "p", snapC1))
	require.Len(t, s.doc.Shapes(), 1)
	require.Eventually(t, func() bool { return len(store.contentWritesFor("p")) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, snapC1, store.contentWritesFor("p")[0].Content)

	require.Eventually(t, func() bool { return s.ctrl.Status().State == service.StateActive }, time.Second, 2*time.Millisecond)
	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Len(t, store.contentWritesFor("p"), 1, "restore load is not captured again")
}

func TestSync_ForgetDropsPendingWrites(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	slow := fastTimings
	slow.ContentQuiet = 150 * time.Millisecond
	s := newSession(t, store, slow)
	s.open(t, "p")

	s.draw(t, "doomed")
	require.Eventually(t, func() bool { return s.ctrl.Status().Captured == 1 }, time.Second, 2*time.Millisecond)
	s.ctrl.Forget("p")

	st := s.ctrl.Status()
	assert.Equal(t, service.StateIdle, st.State)
	assert.Empty(t, st.ActivePageID)

	time.Sleep(2 * slow.ContentQuiet)
	assert.Empty(t, store.contentWrites())
}

func TestSync_CloseDropsPendingWrites(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	s.draw(t, "unsaved")
	require.Eventually(t, func() bool { return s.ctrl.Status().Captured == 1 }, time.Second, 2*time.Millisecond)
	require.NoError(t, s.ctrl.Close(context.Background()))

	time.Sleep(3 * fastTimings.ContentQuiet)
	assert.Empty(t, store.contentWrites())
	assert.ErrorIs(t, s.ctrl.SelectPage(context.Background(), "p"), service.ErrControllerClosed)

	// Edits after teardown reach nobody
	s.draw(t, "late")
	require.NoError(t, s.doc.Quiesce(context.Background()))
	assert.Equal(t, uint64(1), s.ctrl.Status().Captured)
}

func TestSync_EmitsStateChanges(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	s := newSession(t, store, fastTimings)
	s.open(t, "p")

	var states []service.SyncState
	for _, e := range s.emitter.Named("sync:state") {
		states = append(states, e.Data.(service.SyncStatus).State)
	}
	assert.Equal(t, []service.SyncState{service.StateLoading, service.StateActive}, states)
}

func TestSync_SetTimings(t *testing.T) {
	store := newMemStore(pageFixture("p", "P", ""))
	slow := fastTimings
	slow.ContentQuiet = time.Hour
	s := newSession(t, store, slow)

	s.ctrl.SetTimings(fastTimings)
	assert.Equal(t, fastTimings, s.ctrl.Timings())

	s.open(t, "p")
	s.draw(t, "quick")
	require.Eventually(t, func() bool { return len(store.contentWrites()) == 1 }, time.Second, 5*time.Millisecond)
}
