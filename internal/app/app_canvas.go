package app

// ─────────────────────────────────────────────────────────────
// Editing Session Handlers: canvas, title header, history
// ─────────────────────────────────────────────────────────────

import (
	"fmt"

	"sketchbook/internal/canvas"
	"sketchbook/internal/domain"
	"sketchbook/internal/service"
)

// Canvas is the live document of the editing session.
func (a *App) Canvas() *canvas.Document {
	return a.canvas
}

func (a *App) SyncStatus() service.SyncStatus {
	return a.session.Status()
}

func (a *App) SyncTimings() service.SyncTimings {
	return a.session.Timings()
}

// EditTitle handles a keystroke in the editor's title header: the write is
// debounced by the session and the page list shows the new title at once.
// It returns the id of the page the title was applied to.
func (a *App) EditTitle(title string) (string, error) {
	id, err := a.session.EditTitle(title)
	if err != nil {
		return "", err
	}
	a.pages.ApplyTitle(a.ctx, id, title)
	return id, nil
}

// ── Revisions ──────────────────────────────────────────────

// HasRevisions reports whether the configured backend keeps page history.
func (a *App) HasRevisions() bool {
	return a.backend.Revisions != nil
}

func (a *App) ListRevisions(pageID string) ([]domain.Revision, error) {
	if a.backend.Revisions == nil {
		return nil, fmt.Errorf("revision history is not available on %s", a.backend.Kind)
	}
	return a.backend.Revisions.ListRevisions(a.ctx, pageID)
}

// RestoreRevision makes the revision the page's content again and returns it.
func (a *App) RestoreRevision(revisionID string) (*domain.Revision, error) {
	if a.backend.Revisions == nil {
		return nil, fmt.Errorf("revision history is not available on %s", a.backend.Kind)
	}
	rev, err := a.backend.Revisions.GetRevision(a.ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if err := a.session.Restore(a.ctx, rev.PageID, domain.Snapshot(rev.Content)); err != nil {
		return nil, err
	}
	return rev, nil
}
