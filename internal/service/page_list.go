package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"sketchbook/internal/domain"
)

// DefaultPageTitle is the stored title of a freshly created page.
const DefaultPageTitle = "Untitled"

// ─────────────────────────────────────────────────────────────
// PageListCoordinator: ordered pages of one section
// ─────────────────────────────────────────────────────────────

// PageSelector is the part of the editing session the coordinator drives.
type PageSelector interface {
	SelectPage(ctx context.Context, id string) error
	Deselect()
	Forget(id string)
	DiscardTitle(ctx context.Context, id string) error
}

type PendingDelete struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type PageListState struct {
	SectionID     string         `json:"sectionId"`
	Pages         []domain.Page  `json:"pages"`
	SelectedID    string         `json:"selectedId,omitempty"`
	EditingID     string         `json:"editingId,omitempty"`
	EditingTitle  string         `json:"editingTitle"`
	PendingDelete *PendingDelete `json:"pendingDelete,omitempty"`
}

// PageListCoordinator applies list changes optimistically. Each change that
// reaches the store runs as a command whose revert undoes the in-memory
// change when the store rejects it.
type PageListCoordinator struct {
	store    domain.PageStore
	selector PageSelector
	emitter  EventEmitter
	logger   *slog.Logger

	mu    sync.Mutex
	state PageListState
}

type listCommand struct {
	name    string
	apply   func(s *PageListState)
	persist func(ctx context.Context) error
	revert  func(s *PageListState)
}

func NewPageListCoordinator(store domain.PageStore, selector PageSelector, emitter EventEmitter, logger *slog.Logger) *PageListCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageListCoordinator{
		store:    store,
		selector: selector,
		emitter:  emitter,
		logger:   logger.With("component", "pages"),
	}
}

// State returns a copy of the current list state.
func (c *PageListCoordinator) State() PageListState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ── Section & selection ────────────────────────────────────

// LoadSection replaces the list with the pages of sectionID and closes
// the page that was open.
func (c *PageListCoordinator) LoadSection(ctx context.Context, sectionID string) error {
	pages, err := c.store.ListPages(ctx, sectionID)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}

	c.mu.Lock()
	hadSelection := c.state.SelectedID != ""
	c.state = PageListState{SectionID: sectionID, Pages: pages}
	c.mu.Unlock()

	if hadSelection {
		c.selector.Deselect()
	}
	c.changed(ctx)
	return nil
}

// Select opens page id in the editing session.
func (c *PageListCoordinator) Select(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, ok := c.findLocked(id); !ok {
		c.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, domain.ErrUnknownPage)
	}
	if c.state.SelectedID == id {
		c.mu.Unlock()
		return nil
	}
	c.state.SelectedID = id
	c.mu.Unlock()
	c.changed(ctx)

	if err := c.selector.SelectPage(ctx, id); err != nil {
		c.mu.Lock()
		if c.state.SelectedID == id {
			c.state.SelectedID = ""
		}
		c.mu.Unlock()
		c.changed(ctx)
		return err
	}
	return nil
}

// ── Create & rename ────────────────────────────────────────

// CreatePage stores a new page at the end of the section and puts it in
// inline-rename mode with an empty title. The page is not selected.
func (c *PageListCoordinator) CreatePage(ctx context.Context) (*domain.Page, error) {
	c.mu.Lock()
	sectionID := c.state.SectionID
	order := 0
	if n := len(c.state.Pages); n > 0 {
		order = c.state.Pages[n-1].Order + 1
	}
	c.mu.Unlock()
	if sectionID == "" {
		return nil, fmt.Errorf("create page: no section loaded")
	}

	page := &domain.Page{ID: uuid.NewString(), SectionID: sectionID, Title: DefaultPageTitle, Order: order}
	if err := c.store.CreatePage(ctx, page); err != nil {
		c.logger.Warn("create page failed", "section", sectionID, "error", err)
		return nil, fmt.Errorf("create page: %w", err)
	}

	c.mu.Lock()
	if c.state.SectionID == sectionID {
		c.state.Pages = append(c.state.Pages, *page)
		c.state.EditingID = page.ID
		c.state.EditingTitle = ""
	}
	c.mu.Unlock()
	c.changed(ctx)
	return page, nil
}

func (c *PageListCoordinator) StartRename(ctx context.Context, id string) error {
	c.mu.Lock()
	i, ok := c.findLocked(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("rename %s: %w", id, domain.ErrUnknownPage)
	}
	c.state.EditingID = id
	c.state.EditingTitle = c.state.Pages[i].Title
	c.mu.Unlock()
	c.changed(ctx)
	return nil
}

func (c *PageListCoordinator) SetEditingTitle(ctx context.Context, title string) {
	c.mu.Lock()
	if c.state.EditingID == "" {
		c.mu.Unlock()
		return
	}
	c.state.EditingTitle = title
	c.mu.Unlock()
	c.changed(ctx)
}

// CommitRename leaves rename mode and commits the edited title.
func (c *PageListCoordinator) CommitRename(ctx context.Context) error {
	c.mu.Lock()
	id, title := c.state.EditingID, c.state.EditingTitle
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	return c.RenameInline(ctx, id, title)
}

func (c *PageListCoordinator) CancelRename(ctx context.Context) {
	c.mu.Lock()
	c.clearEditingLocked()
	c.mu.Unlock()
	c.changed(ctx)
}

// RenameInline stores the trimmed title if it is non-empty and differs
// from the current one. Anything else is discarded without a write.
// A header title edit of the same page that has not been written yet is
// dropped, since the rename is newer.
func (c *PageListCoordinator) RenameInline(ctx context.Context, id, proposed string) error {
	title := strings.TrimSpace(proposed)

	c.mu.Lock()
	if c.state.EditingID == id {
		c.clearEditingLocked()
	}
	i, ok := c.findLocked(id)
	if !ok {
		c.mu.Unlock()
		c.changed(ctx)
		return fmt.Errorf("rename %s: %w", id, domain.ErrUnknownPage)
	}
	old := c.state.Pages[i].Title
	c.mu.Unlock()

	if title == "" || title == old {
		c.changed(ctx)
		return nil
	}
	return c.run(ctx, listCommand{
		name:    "rename page",
		apply:   func(s *PageListState) { setTitle(s, id, old, title) },
		persist: func(ctx context.Context) error {
			if err := c.selector.DiscardTitle(ctx, id); err != nil {
				return err
			}
			return c.store.SavePageTitle(ctx, id, title)
		},
		revert:  func(s *PageListState) { setTitle(s, id, title, old) },
	})
}

// ApplyTitle reflects a title that is persisted elsewhere.
func (c *PageListCoordinator) ApplyTitle(ctx context.Context, id, title string) {
	c.mu.Lock()
	if i, ok := c.findLocked(id); ok {
		c.state.Pages[i].Title = title
	}
	c.mu.Unlock()
	c.changed(ctx)
}

// ── Reorder ────────────────────────────────────────────────

// Reorder moves draggedID to the position of targetID and stores the new
// order. Dropping a page on itself does nothing.
func (c *PageListCoordinator) Reorder(ctx context.Context, draggedID, targetID string) error {
	if draggedID == targetID {
		return nil
	}

	c.mu.Lock()
	from, okFrom := c.findLocked(draggedID)
	to, okTo := c.findLocked(targetID)
	sectionID := c.state.SectionID
	before := pageIDs(c.state.Pages)
	c.mu.Unlock()
	if !okFrom || !okTo {
		return fmt.Errorf("reorder %s onto %s: %w", draggedID, targetID, domain.ErrUnknownPage)
	}
	after := arrayMove(before, from, to)

	return c.run(ctx, listCommand{
		name:    "reorder pages",
		apply:   func(s *PageListState) { applyOrder(s, after) },
		persist: func(ctx context.Context) error { return c.store.ReorderPages(ctx, sectionID, after) },
		revert:  func(s *PageListState) { applyOrder(s, before) },
	})
}

// ── Delete ─────────────────────────────────────────────────

// RequestDelete asks for confirmation before page id is deleted.
func (c *PageListCoordinator) RequestDelete(ctx context.Context, id string) (*PendingDelete, error) {
	c.mu.Lock()
	i, ok := c.findLocked(id)
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("delete %s: %w", id, domain.ErrUnknownPage)
	}
	pd := &PendingDelete{ID: id, Title: c.state.Pages[i].Title}
	c.state.PendingDelete = pd
	c.mu.Unlock()
	c.changed(ctx)
	return pd, nil
}

func (c *PageListCoordinator) CancelDelete(ctx context.Context) {
	c.mu.Lock()
	c.state.PendingDelete = nil
	c.mu.Unlock()
	c.changed(ctx)
}

// ConfirmDelete deletes the page awaiting confirmation. The page leaves the
// list and the selection at once; once the store confirms, the editing
// session forgets it before ConfirmDelete returns.
func (c *PageListCoordinator) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	pd := c.state.PendingDelete
	c.state.PendingDelete = nil
	var (
		removed    domain.Page
		index      int
		wasEditing bool
		wasActive  bool
		found      bool
	)
	if pd != nil {
		index, found = c.findLocked(pd.ID)
		if found {
			removed = c.state.Pages[index]
			wasActive = c.state.SelectedID == pd.ID
			wasEditing = c.state.EditingID == pd.ID
		}
	}
	c.mu.Unlock()
	if pd == nil {
		return domain.ErrNoPendingDelete
	}
	if !found {
		c.changed(ctx)
		return fmt.Errorf("delete %s: %w", pd.ID, domain.ErrUnknownPage)
	}

	err := c.run(ctx, listCommand{
		name: "delete page",
		apply: func(s *PageListState) {
			s.Pages = lo.Reject(s.Pages, func(p domain.Page, _ int) bool { return p.ID == removed.ID })
			if wasActive {
				s.SelectedID = ""
			}
			if wasEditing {
				s.EditingID, s.EditingTitle = "", ""
			}
		},
		persist: func(ctx context.Context) error { return c.store.DeletePage(ctx, removed.ID) },
		revert: func(s *PageListState) {
			s.Pages = slices.Insert(s.Pages, min(index, len(s.Pages)), removed)
			if wasActive && s.SelectedID == "" {
				s.SelectedID = removed.ID
			}
		},
	})
	if err != nil {
		return err
	}
	c.selector.Forget(removed.ID)
	return nil
}

// ── Internals ──────────────────────────────────────────────

func (c *PageListCoordinator) run(ctx context.Context, cmd listCommand) error {
	c.mu.Lock()
	cmd.apply(&c.state)
	c.mu.Unlock()
	c.changed(ctx)

	if err := cmd.persist(ctx); err != nil {
		c.logger.Warn(cmd.name+" failed, reverting", "error", err)
		c.mu.Lock()
		cmd.revert(&c.state)
		c.mu.Unlock()
		c.changed(ctx)
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	return nil
}

func (c *PageListCoordinator) changed(ctx context.Context) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(ctx, "pages:changed", c.State())
}

func (c *PageListCoordinator) findLocked(id string) (int, bool) {
	_, i, ok := lo.FindIndexOf(c.state.Pages, func(p domain.Page) bool { return p.ID == id })
	return i, ok
}

func (c *PageListCoordinator) clearEditingLocked() {
	c.state.EditingID = ""
	c.state.EditingTitle = ""
}

func (c *PageListCoordinator) snapshotLocked() PageListState {
	s := c.state
	s.Pages = slices.Clone(c.state.Pages)
	if c.state.PendingDelete != nil {
		pd := *c.state.PendingDelete
		s.PendingDelete = &pd
	}
	return s
}

// setTitle sets the title of id to to, unless a later change already moved
// it away from from.
func setTitle(s *PageListState, id, from, to string) {
	for i := range s.Pages {
		if s.Pages[i].ID == id && s.Pages[i].Title == from {
			s.Pages[i].Title = to
		}
	}
}

// applyOrder sorts the pages by their position in ids and renumbers Order.
// Pages missing from ids keep their relative order at the end.
func applyOrder(s *PageListState, ids []string) {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	slices.SortStableFunc(s.Pages, func(a, b domain.Page) int {
		pa, okA := pos[a.ID]
		pb, okB := pos[b.ID]
		switch {
		case okA && okB:
			return pa - pb
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
	for i := range s.Pages {
		s.Pages[i].Order = i
	}
}

func pageIDs(pages []domain.Page) []string {
	return lo.Map(pages, func(p domain.Page, _ int) string { return p.ID })
}

// arrayMove returns a copy of ids with the element at from moved to to.
func arrayMove(ids []string, from, to int) []string {
	out := slices.Clone(ids)
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item)
}
