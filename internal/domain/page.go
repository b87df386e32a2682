package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPageNotFound is returned by a PageStore when the page id does not exist.
	ErrPageNotFound = errors.New("page not found")
	// ErrStaleWrite is returned by SavePageContent when a write with a newer
	// sequence number has already been committed for the page.
	ErrStaleWrite = errors.New("stale content write")
	// ErrUnknownPage is returned when a page id is not part of the loaded section.
	ErrUnknownPage = errors.New("page not in section")
	// ErrNoPendingDelete is returned by ConfirmDelete when nothing awaits confirmation.
	ErrNoPendingDelete = errors.New("no pending delete")
)

type Tenant struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

type Section struct {
	ID        string    `json:"id" bson:"_id"`
	TenantID  string    `json:"tenantId" bson:"tenant_id"`
	Name      string    `json:"name" bson:"name"`
	Order     int       `json:"order" bson:"sort_order"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Page is a single canvas page inside a section.
// Content holds the serialized canvas snapshot; nil means the page was never drawn on.
type Page struct {
	ID         string    `json:"id" bson:"_id"`
	SectionID  string    `json:"sectionId" bson:"section_id"`
	Title      string    `json:"title" bson:"title"`
	Content    *string   `json:"content,omitempty" bson:"content,omitempty"`
	ContentSeq int64     `json:"contentSeq" bson:"content_seq"`
	Order      int       `json:"order" bson:"sort_order"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// HasContent reports whether the page carries a non-empty snapshot.
func (p *Page) HasContent() bool {
	return p != nil && p.Content != nil && *p.Content != ""
}

// PageStore is the persistence gateway for pages.
type PageStore interface {
	CreatePage(ctx context.Context, p *Page) error
	LoadPage(ctx context.Context, id string) (*Page, error)
	// ListPages returns the section's pages ordered by Order, without content.
	ListPages(ctx context.Context, sectionID string) ([]Page, error)
	// SavePageContent stores content only if seq is newer than the stored
	// sequence; otherwise it returns ErrStaleWrite.
	SavePageContent(ctx context.Context, id, content string, seq int64) error
	SavePageTitle(ctx context.Context, id, title string) error
	// ReorderPages assigns Order = index for every id, all or nothing.
	ReorderPages(ctx context.Context, sectionID string, pageIDs []string) error
	DeletePage(ctx context.Context, id string) error
}

type SectionStore interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	ListTenants(ctx context.Context) ([]Tenant, error)
	CreateSection(ctx context.Context, s *Section) error
	ListSections(ctx context.Context, tenantID string) ([]Section, error)
}

// Revision is a committed snapshot of a page kept for history/restore.
type Revision struct {
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	Seq       int64     `json:"seq"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type RevisionStore interface {
	RecordRevision(ctx context.Context, r *Revision) error
	// ListRevisions returns revisions newest first, without content.
	ListRevisions(ctx context.Context, pageID string) ([]Revision, error)
	GetRevision(ctx context.Context, id string) (*Revision, error)
	// PruneRevisions keeps the newest keep revisions of every page.
	PruneRevisions(ctx context.Context, keep int) (int64, error)
}
