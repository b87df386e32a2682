package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sketchbook/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ─────────────────────────────────────────────────────────────
// memStore: recording in-memory domain.PageStore
// ─────────────────────────────────────────────────────────────

type contentWrite struct {
	PageID  string
	Content string
	Seq     int64
}

type memStore struct {
	mu sync.Mutex

	pages    map[string]*domain.Page
	content  []contentWrite
	titles   []contentWrite
	reorders [][]string
	deletes  []string
	loads    []string

	loadErr    map[string]error
	loadDelay  map[string]time.Duration
	titleErr   error
	reorderErr error
	deleteErr  error
	writeDelay time.Duration
}

func newMemStore(pages ...domain.Page) *memStore {
	s := &memStore{
		pages:     make(map[string]*domain.Page),
		loadErr:   make(map[string]error),
		loadDelay: make(map[string]time.Duration),
	}
	for i := range pages {
		p := pages[i]
		s.pages[p.ID] = &p
	}
	return s
}

func strPtr(s string) *string { return &s }

// pageFixture builds a page of section "sec"; empty content means none stored.
func pageFixture(id, title, content string) domain.Page {
	p := domain.Page{ID: id, SectionID: "sec", Title: title}
	if content != "" {
		p.Content = strPtr(content)
	}
	return p
}

func (s *memStore) CreatePage(_ context.Context, p *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pages[p.ID] = &cp
	return nil
}

func (s *memStore) LoadPage(_ context.Context, id string) (*domain.Page, error) {
	s.mu.Lock()
	delay := s.loadDelay[id]
	s.mu.Unlock()
	time.Sleep(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, id)
	if err := s.loadErr[id]; err != nil {
		return nil, err
	}
	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("load page %s: %w", id, domain.ErrPageNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ListPages(_ context.Context, sectionID string) ([]domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Page
	for _, p := range s.pages {
		if p.SectionID == sectionID {
			cp := *p
			cp.Content = nil
			out = append(out, cp)
		}
	}
	slices.SortFunc(out, func(a, b domain.Page) int { return a.Order - b.Order })
	return out, nil
}

func (s *memStore) SavePageContent(_ context.Context, id, content string, seq int64) error {
	if s.writeDelay > 0 {
		time.Sleep(s.writeDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return fmt.Errorf("save %s: %w", id, domain.ErrPageNotFound)
	}
	if seq <= p.ContentSeq {
		return domain.ErrStaleWrite
	}
	p.Content = strPtr(content)
	p.ContentSeq = seq
	s.content = append(s.content, contentWrite{PageID: id, Content: content, Seq: seq})
	return nil
}

func (s *memStore) SavePageTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleErr != nil {
		return s.titleErr
	}
	p, ok := s.pages[id]
	if !ok {
		return domain.ErrPageNotFound
	}
	p.Title = title
	s.titles = append(s.titles, contentWrite{PageID: id, Content: title})
	return nil
}

func (s *memStore) ReorderPages(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reorderErr != nil {
		return s.reorderErr
	}
	for i, id := range ids {
		if p, ok := s.pages[id]; ok {
			p.Order = i
		}
	}
	s.reorders = append(s.reorders, slices.Clone(ids))
	return nil
}

func (s *memStore) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.pages[id]; !ok {
		return domain.ErrPageNotFound
	}
	delete(s.pages, id)
	s.deletes = append(s.deletes, id)
	return nil
}

func (s *memStore) contentWrites() []contentWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.content)
}

func (s *memStore) contentWritesFor(id string) []contentWrite {
	var out []contentWrite
	for _, w := range s.contentWrites() {
		if w.PageID == id {
			out = append(out, w)
		}
	}
	return out
}

func (s *memStore) titleWrites() []contentWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.titles)
}

func (s *memStore) loadedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loads)
}

func (s *memStore) reorderCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reorders)
}

func (s *memStore) deleteCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deletes)
}

// ─────────────────────────────────────────────────────────────
// memRevisions: in-memory domain.RevisionStore
// ─────────────────────────────────────────────────────────────

type memRevisions struct {
	mu      sync.Mutex
	revs    []domain.Revision
	pruneFn func(keep int) (int64, error)
}

func (r *memRevisions) RecordRevision(_ context.Context, rev *domain.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revs = append(r.revs, *rev)
	return nil
}

func (r *memRevisions) ListRevisions(_ context.Context, pageID string) ([]domain.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Revision
	for i := len(r.revs) - 1; i >= 0; i-- {
		if r.revs[i].PageID == pageID {
			out = append(out, r.revs[i])
		}
	}
	return out, nil
}

func (r *memRevisions) GetRevision(_ context.Context, id string) (*domain.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range r.revs {
		if rev.ID == id {
			cp := rev
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("revision %s not found", id)
}

func (r *memRevisions) PruneRevisions(_ context.Context, keep int) (int64, error) {
	if r.pruneFn != nil {
		return r.pruneFn(keep)
	}
	return 0, nil
}

func (r *memRevisions) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.revs)
}

// ─────────────────────────────────────────────────────────────
// fakeSelector: records what the coordinator asks of the session
// ─────────────────────────────────────────────────────────────

type fakeSelector struct {
	mu        sync.Mutex
	selected  []string
	deselects int
	forgotten []string
	discarded []string
	selectErr error
}

func (f *fakeSelector) SelectPage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id)
	return f.selectErr
}

func (f *fakeSelector) Deselect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deselects++
}

func (f *fakeSelector) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, id)
}

func (f *fakeSelector) DiscardTitle(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, id)
	return nil
}
