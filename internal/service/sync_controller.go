package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sketchbook/internal/domain"
)

var (
	ErrControllerClosed = errors.New("sync controller closed")
	ErrNoActivePage     = errors.New("no active page")
)

// ─────────────────────────────────────────────────────────────
// SyncController: keeps the live canvas and the stored page in step
// ─────────────────────────────────────────────────────────────

type SyncState int

const (
	StateIdle SyncState = iota
	StateLoading
	StateActive
)

func (s SyncState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SyncState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "loading":
		*s = StateLoading
	case "active":
		*s = StateActive
	default:
		return fmt.Errorf("unknown sync state %q", b)
	}
	return nil
}

// SyncTimings are the tunable quiet periods of the editing session.
// SettleDelay is an upper bound when the canvas can signal quiescence.
type SyncTimings struct {
	ContentQuiet time.Duration
	TitleQuiet   time.Duration
	SettleDelay  time.Duration
}

func DefaultSyncTimings() SyncTimings {
	return SyncTimings{
		ContentQuiet: time.Second,
		TitleQuiet:   500 * time.Millisecond,
		SettleDelay:  500 * time.Millisecond,
	}
}

type SyncStatus struct {
	State         SyncState `json:"state"`
	ActivePageID  string    `json:"activePageId,omitempty"`
	ContentSaving bool      `json:"contentSaving"`
	TitleSaving   bool      `json:"titleSaving"`
	Unsaved       bool      `json:"unsaved"` // active page has edits waiting for their quiet period
	Captured      uint64    `json:"captured"`
	Ignored       uint64    `json:"ignored"`
}

type SyncConfig struct {
	Canvas       domain.Canvas
	Pages        domain.PageStore
	Revisions    domain.RevisionStore // optional
	Emitter      EventEmitter
	Logger       *slog.Logger
	Timings      SyncTimings
	WriteTimeout time.Duration
}

// SyncController owns the editing session of one canvas. A single loop
// goroutine owns the session state; page selection, canvas mutation
// events, load results and settle timers all reach it as queued events.
type SyncController struct {
	canvas    domain.Canvas
	pages     domain.PageStore
	revisions domain.RevisionStore
	emitter   EventEmitter
	logger    *slog.Logger
	timeout   time.Duration

	content *DebouncedWriter
	title   *DebouncedWriter

	events      chan any
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	stopped     chan struct{}
	unsubscribe func()
	closeOnce   sync.Once

	// loop-owned
	state     SyncState
	active    string
	gen       uint64
	installed uint64       // gen of the last load that reached the canvas
	waiting   []chan error // repeat selections of the page being loaded
	baseline  uint64
	captured  uint64
	ignored   uint64

	mu      sync.RWMutex
	status  SyncStatus
	timings SyncTimings
}

type selectReq struct {
	id    string
	reply chan error
}

type installEvent struct {
	gen   uint64
	id    string
	page  *domain.Page
	err   error
	reply chan error
}

type settledEvent struct{ gen uint64 }

type mutationEvent struct{ ev domain.MutationEvent }

type deselectReq struct{ reply chan struct{} }

type forgetReq struct {
	id    string
	reply chan struct{}
}

type titleReq struct {
	title string
	reply chan titleReply
}

type titleReply struct {
	pageID string
	err    error
}

type restoreReq struct {
	pageID string
	snap   domain.Snapshot
	reply  chan error
}

// NewSyncController subscribes to the canvas and starts the session loop.
func NewSyncController(cfg SyncConfig) *SyncController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Timings == (SyncTimings{}) {
		cfg.Timings = DefaultSyncTimings()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncController{
		canvas:    cfg.Canvas,
		pages:     cfg.Pages,
		revisions: cfg.Revisions,
		emitter:   cfg.Emitter,
		logger:    logger.With("component", "sync"),
		timeout:   cfg.WriteTimeout,
		events:    make(chan any, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		timings:   cfg.Timings,
	}
	c.content = NewDebouncedWriter("content", cfg.Timings.ContentQuiet, c.saveContent,
		WithEmitter(cfg.Emitter), WithLogger(logger), WithWriteTimeout(cfg.WriteTimeout))
	c.title = NewDebouncedWriter("title", cfg.Timings.TitleQuiet, c.saveTitle,
		WithEmitter(cfg.Emitter), WithLogger(logger), WithWriteTimeout(cfg.WriteTimeout))

	c.unsubscribe = c.canvas.Subscribe(c.onMutation)
	go c.run()
	return c
}

// ── Public API ─────────────────────────────────────────────

// SelectPage switches the session to page id and returns once the page
// has been installed into the canvas. Selecting the active page is a no-op;
// selecting the page still being loaded waits for that load.
// If the load fails the session becomes idle and the error is returned.
func (c *SyncController) SelectPage(ctx context.Context, id string) error {
	if id == "" {
		c.Deselect()
		return nil
	}
	reply := make(chan error, 1)
	if err := c.send(ctx, selectReq{id: id, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deselect closes the active page and clears the canvas.
func (c *SyncController) Deselect() {
	reply := make(chan struct{})
	if c.send(context.Background(), deselectReq{reply: reply}) != nil {
		return
	}
	select {
	case <-reply:
	case <-c.stopped:
	}
}

// Forget drops pending writes for a deleted page. If it is the active page
// the session becomes idle without capturing it.
func (c *SyncController) Forget(id string) {
	reply := make(chan struct{})
	if c.send(context.Background(), forgetReq{id: id, reply: reply}) != nil {
		return
	}
	select {
	case <-reply:
	case <-c.stopped:
	}
}

// EditTitle schedules a title write for the active page and returns the
// id of the page the write is keyed to.
func (c *SyncController) EditTitle(title string) (string, error) {
	reply := make(chan titleReply, 1)
	if err := c.send(context.Background(), titleReq{title: title, reply: reply}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.pageID, r.err
	case <-c.stopped:
		return "", ErrControllerClosed
	}
}

// DiscardTitle drops a header title edit of id that has not been written
// yet and waits for one in flight. Titles stored directly afterwards are
// not overwritten by the older edit.
func (c *SyncController) DiscardTitle(ctx context.Context, id string) error {
	return c.title.Discard(ctx, id)
}

// Restore writes snap as the content of pageID. When pageID is active the
// snapshot is installed into the canvas first, as a programmatic load.
func (c *SyncController) Restore(ctx context.Context, pageID string, snap domain.Snapshot) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, restoreReq{pageID: pageID, snap: snap, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncController) Status() SyncStatus {
	c.mu.RLock()
	s := c.status
	c.mu.RUnlock()
	s.ContentSaving = c.content.Saving()
	s.TitleSaving = c.title.Saving()
	if s.ActivePageID != "" {
		s.Unsaved = c.content.Pending(s.ActivePageID) || c.title.Pending(s.ActivePageID)
	}
	return s
}

func (c *SyncController) Timings() SyncTimings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timings
}

// SetTimings applies new quiet periods. Pending payloads keep the period
// they were scheduled with.
func (c *SyncController) SetTimings(t SyncTimings) {
	c.mu.Lock()
	c.timings = t
	c.mu.Unlock()
	c.content.SetQuiet(t.ContentQuiet)
	c.title.SetQuiet(t.TitleQuiet)
	c.logger.Info("timings updated", "content_quiet", t.ContentQuiet, "title_quiet", t.TitleQuiet, "settle_delay", t.SettleDelay)
}

// Close unsubscribes from the canvas, stops the loop and drops pending
// writes without flushing them. It waits for in-flight writes until ctx is done.
func (c *SyncController) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.unsubscribe()
		close(c.done)
		<-c.stopped
		err = errors.Join(c.content.Close(ctx), c.title.Close(ctx))
		c.cancel()
	})
	return err
}

// ── Loop ───────────────────────────────────────────────────

func (c *SyncController) send(ctx context.Context, ev any) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncController) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *SyncController) onMutation(ev domain.MutationEvent) {
	c.post(mutationEvent{ev: ev})
}

func (c *SyncController) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *SyncController) handle(ev any) {
	switch ev := ev.(type) {
	case selectReq:
		c.handleSelect(ev)
	case installEvent:
		c.handleInstall(ev)
	case settledEvent:
		if ev.gen == c.gen && c.state == StateLoading {
			c.state = StateActive
			c.logger.Debug("capture armed", "page", c.active)
		}
	case mutationEvent:
		c.handleMutation(ev.ev)
	case deselectReq:
		c.leave()
		c.reset()
		close(ev.reply)
	case forgetReq:
		c.content.Cancel(ev.id)
		c.title.Cancel(ev.id)
		if c.active == ev.id {
			c.reset()
		}
		close(ev.reply)
	case titleReq:
		if c.active == "" {
			ev.reply <- titleReply{err: ErrNoActivePage}
			break
		}
		c.title.Schedule(c.active, ev.title)
		ev.reply <- titleReply{pageID: c.active}
	case restoreReq:
		ev.reply <- c.handleRestore(ev)
	}
	c.publish()
}

func (c *SyncController) handleSelect(req selectReq) {
	if req.id == c.active {
		switch c.state {
		case StateActive:
			req.reply <- nil
			return
		case StateLoading:
			if c.loadPending() {
				c.waiting = append(c.waiting, req.reply)
			} else {
				req.reply <- nil
			}
			return
		}
	}
	c.leave()
	c.release(nil)
	c.gen++
	c.state = StateLoading
	c.active = req.id
	go c.load(c.gen, req.id, req.reply)
}

func (c *SyncController) load(gen uint64, id string, reply chan error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	page, err := c.pages.LoadPage(ctx, id)
	cancel()
	c.post(installEvent{gen: gen, id: id, page: page, err: err, reply: reply})
}

func (c *SyncController) handleInstall(ev installEvent) {
	if ev.gen != c.gen {
		// A newer selection replaced this one while it was loading
		ev.reply <- nil
		return
	}
	c.installed = c.gen
	if ev.err != nil {
		c.logger.Warn("load page failed", "page", ev.id, "error", ev.err)
		err := fmt.Errorf("load page %s: %w", ev.id, ev.err)
		c.release(err)
		c.reset()
		ev.reply <- err
		return
	}

	content, pending := c.content.Latest(ev.id)
	if !pending && ev.page.HasContent() {
		content = *ev.page.Content
	}
	if content == "" {
		c.canvas.Clear()
	} else if err := c.canvas.Replace(domain.Snapshot(content)); err != nil {
		c.logger.Warn("stored snapshot unreadable, starting empty", "page", ev.id, "error", err)
		c.canvas.Clear()
	}
	c.baseline = c.version()
	c.armAfterSettle(ev.gen)
	c.release(nil)
	ev.reply <- nil
}

// loadPending reports whether the page being loaded has not been installed yet.
func (c *SyncController) loadPending() bool {
	return c.installed != c.gen
}

// release answers selections that were waiting for the current load.
func (c *SyncController) release(err error) {
	for _, reply := range c.waiting {
		reply <- err
	}
	c.waiting = nil
}

// armAfterSettle re-arms capture once the canvas has delivered the events
// of the install, or after the settle delay, whichever comes first.
func (c *SyncController) armAfterSettle(gen uint64) {
	settle := c.Timings().SettleDelay
	q, hasQuiesce := c.canvas.(domain.Quiescer)
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, settle)
		defer cancel()
		if hasQuiesce {
			if err := q.Quiesce(ctx); err != nil {
				c.logger.Debug("quiesce ended early", "error", err)
			}
		} else {
			<-ctx.Done()
		}
		c.post(settledEvent{gen: gen})
	}()
}

func (c *SyncController) handleMutation(ev domain.MutationEvent) {
	if c.state != StateActive || ev.Source != domain.SourceUser || ev.Scope != domain.ScopeDocument {
		c.ignored++
		return
	}
	c.capture()
}

// capture hands the current document to the content writer, keyed by the
// page active now.
func (c *SyncController) capture() {
	v := c.version()
	snap, err := c.canvas.Serialize()
	if err != nil {
		c.logger.Warn("serialize canvas failed", "page", c.active, "error", err)
		return
	}
	c.baseline = v
	c.captured++
	c.content.Schedule(c.active, string(snap))
}

// leave captures edits whose events had not reached the loop when the
// active page is about to change.
func (c *SyncController) leave() {
	if c.state != StateActive || c.active == "" {
		return
	}
	if _, ok := c.canvas.(domain.Versioned); !ok {
		return
	}
	if c.version() != c.baseline {
		c.logger.Debug("capturing undelivered edits", "page", c.active)
		c.capture()
	}
}

func (c *SyncController) reset() {
	c.release(nil)
	c.gen++
	c.state = StateIdle
	c.active = ""
	c.canvas.Clear()
	c.baseline = c.version()
}

func (c *SyncController) handleRestore(req restoreReq) error {
	if req.pageID == c.active && c.state != StateIdle {
		prev := c.state
		c.state = StateLoading
		if err := c.canvas.Replace(req.snap); err != nil {
			c.state = prev
			return fmt.Errorf("restore page %s: %w", req.pageID, err)
		}
		c.gen++
		c.installed = c.gen
		c.release(nil)
		c.baseline = c.version()
		c.armAfterSettle(c.gen)
	}
	c.content.Schedule(req.pageID, string(req.snap))
	return nil
}

func (c *SyncController) version() uint64 {
	if v, ok := c.canvas.(domain.Versioned); ok {
		return v.Version()
	}
	return 0
}

// publish mirrors loop state for Status and emits "sync:state" when the
// state or the active page changed.
func (c *SyncController) publish() {
	c.mu.Lock()
	changed := c.status.State != c.state || c.status.ActivePageID != c.active
	c.status.State = c.state
	c.status.ActivePageID = c.active
	c.status.Captured = c.captured
	c.status.Ignored = c.ignored
	s := c.status
	c.mu.Unlock()

	if changed && c.emitter != nil {
		c.emitter.Emit(c.ctx, "sync:state", s)
	}
}

// ── Writes ─────────────────────────────────────────────────

func (c *SyncController) saveContent(ctx context.Context, pageID, payload string, seq int64) error {
	if err := c.pages.SavePageContent(ctx, pageID, payload, seq); err != nil {
		return err
	}
	if c.revisions == nil {
		return nil
	}
	rev := &domain.Revision{ID: uuid.NewString(), PageID: pageID, Seq: seq, Content: payload}
	if err := c.revisions.RecordRevision(ctx, rev); err != nil {
		c.logger.Warn("record revision failed", "page", pageID, "error", err)
	}
	return nil
}

func (c *SyncController) saveTitle(ctx context.Context, pageID, title string, _ int64) error {
	return c.pages.SavePageTitle(ctx, pageID, title)
}
