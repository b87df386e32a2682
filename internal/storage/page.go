package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sketchbook/internal/domain"
)

// PageStore implements domain.PageStore and domain.SectionStore over SQL.
type PageStore struct {
	db *DB
}

func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

func (s *PageStore) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO tenants (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		t.ID, t.Name, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PageStore) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PageStore) CreateSection(ctx context.Context, sec *domain.Section) error {
	now := time.Now().UTC()
	sec.CreatedAt = now
	sec.UpdatedAt = now
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO sections (id, tenant_id, name, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		sec.ID, sec.TenantID, sec.Name, sec.Order, sec.CreatedAt, sec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

func (s *PageStore) ListSections(ctx context.Context, tenantID string) ([]domain.Section, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT id, tenant_id, name, sort_order, created_at, updated_at FROM sections WHERE tenant_id = ? ORDER BY sort_order ASC, created_at ASC`),
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []domain.Section
	for rows.Next() {
		var sec domain.Section
		if err := rows.Scan(&sec.ID, &sec.TenantID, &sec.Name, &sec.Order, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *PageStore) CreatePage(ctx context.Context, p *domain.Page) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO pages (id, section_id, title, content, content_seq, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.SectionID, p.Title, nullString(p.Content), p.ContentSeq, p.Order, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (s *PageStore) LoadPage(ctx context.Context, id string) (*domain.Page, error) {
	p := &domain.Page{}
	var content sql.NullString
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, section_id, title, content, content_seq, sort_order, created_at, updated_at FROM pages WHERE id = ?`), id,
	).Scan(&p.ID, &p.SectionID, &p.Title, &content, &p.ContentSeq, &p.Order, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load page %s: %w", id, domain.ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	if content.Valid {
		p.Content = &content.String
	}
	return p, nil
}

func (s *PageStore) ListPages(ctx context.Context, sectionID string) ([]domain.Page, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT id, section_id, title, content_seq, sort_order, created_at, updated_at FROM pages WHERE section_id = ? ORDER BY sort_order ASC, created_at ASC`),
		sectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		if err := rows.Scan(&p.ID, &p.SectionID, &p.Title, &p.ContentSeq, &p.Order, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *PageStore) SavePageContent(ctx context.Context, id, content string, seq int64) error {
	res, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`UPDATE pages SET content = ?, content_seq = ?, updated_at = ? WHERE id = ? AND content_seq < ?`),
		content, seq, time.Now().UTC(), id, seq,
	)
	if err != nil {
		return fmt.Errorf("save page content: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Nothing updated: either the page is gone or a newer write already landed
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("save page content %s seq %d: %w", id, seq, domain.ErrStaleWrite)
}

func (s *PageStore) SavePageTitle(ctx context.Context, id, title string) error {
	res, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`UPDATE pages SET title = ?, updated_at = ? WHERE id = ?`),
		title, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("save page title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.exists(ctx, id)
	}
	return nil
}

func (s *PageStore) ReorderPages(ctx context.Context, sectionID string, pageIDs []string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt := s.db.rebind(`UPDATE pages SET sort_order = ?, updated_at = ? WHERE id = ? AND section_id = ?`)
	now := time.Now().UTC()
	for i, id := range pageIDs {
		res, err := tx.ExecContext(ctx, stmt, i, now, id, sectionID)
		if err != nil {
			return fmt.Errorf("reorder page %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("reorder page %s in section %s: %w", id, sectionID, domain.ErrPageNotFound)
		}
	}
	return tx.Commit()
}

func (s *PageStore) DeletePage(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM page_revisions WHERE page_id = ?`), id); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM pages WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete page %s: %w", id, domain.ErrPageNotFound)
	}
	return tx.Commit()
}

func (s *PageStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(`SELECT 1 FROM pages WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("page %s: %w", id, domain.ErrPageNotFound)
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
