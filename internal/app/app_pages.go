package app

// ─────────────────────────────────────────────────────────────
// Tenant, Section + Page Handlers: thin delegates
// ─────────────────────────────────────────────────────────────

import (
	"github.com/google/uuid"

	"sketchbook/internal/domain"
	"sketchbook/internal/service"
)

// ── Tenants & sections ─────────────────────────────────────

func (a *App) ListTenants() ([]domain.Tenant, error) {
	return a.backend.Sections.ListTenants(a.ctx)
}

func (a *App) CreateTenant(name string) (*domain.Tenant, error) {
	t := &domain.Tenant{ID: uuid.NewString(), Name: name}
	if err := a.backend.Sections.CreateTenant(a.ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *App) ListSections(tenantID string) ([]domain.Section, error) {
	return a.backend.Sections.ListSections(a.ctx, tenantID)
}

// CreateSection appends a section to the tenant's list.
func (a *App) CreateSection(tenantID, name string) (*domain.Section, error) {
	existing, err := a.backend.Sections.ListSections(a.ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s := &domain.Section{ID: uuid.NewString(), TenantID: tenantID, Name: name, Order: len(existing)}
	if err := a.backend.Sections.CreateSection(a.ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ── Page list ──────────────────────────────────────────────

func (a *App) OpenSection(sectionID string) error {
	return a.pages.LoadSection(a.ctx, sectionID)
}

func (a *App) PageList() service.PageListState {
	return a.pages.State()
}

func (a *App) SelectPage(id string) error {
	return a.pages.Select(a.ctx, id)
}

func (a *App) CreatePage() (*domain.Page, error) {
	return a.pages.CreatePage(a.ctx)
}

func (a *App) StartRename(id string) error {
	return a.pages.StartRename(a.ctx, id)
}

func (a *App) SetEditingTitle(title string) {
	a.pages.SetEditingTitle(a.ctx, title)
}

func (a *App) CommitRename() error {
	return a.pages.CommitRename(a.ctx)
}

func (a *App) CancelRename() {
	a.pages.CancelRename(a.ctx)
}

func (a *App) ReorderPage(draggedID, targetID string) error {
	return a.pages.Reorder(a.ctx, draggedID, targetID)
}

func (a *App) RequestDeletePage(id string) (*service.PendingDelete, error) {
	return a.pages.RequestDelete(a.ctx, id)
}

func (a *App) CancelDeletePage() {
	a.pages.CancelDelete(a.ctx)
}

func (a *App) ConfirmDeletePage() error {
	return a.pages.ConfirmDelete(a.ctx)
}
