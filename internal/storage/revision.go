package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sketchbook/internal/domain"
)

// ErrRevisionNotFound is returned by GetRevision for an unknown id.
var ErrRevisionNotFound = errors.New("revision not found")

// RevisionStore keeps committed page snapshots in SQL.
type RevisionStore struct {
	db *DB
}

func NewRevisionStore(db *DB) *RevisionStore {
	return &RevisionStore{db: db}
}

// RecordRevision stores a committed snapshot for a page.
func (s *RevisionStore) RecordRevision(ctx context.Context, r *domain.Revision) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO page_revisions (id, page_id, seq, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		r.ID, r.PageID, r.Seq, r.Content, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

// ListRevisions returns the page's revisions, newest first, without content.
func (s *RevisionStore) ListRevisions(ctx context.Context, pageID string) ([]domain.Revision, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT id, page_id, seq, created_at FROM page_revisions WHERE page_id = ? ORDER BY seq DESC`), pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("load revisions: %w", err)
	}
	defer rows.Close()

	var revs []domain.Revision
	for rows.Next() {
		var r domain.Revision
		if err := rows.Scan(&r.ID, &r.PageID, &r.Seq, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

func (s *RevisionStore) GetRevision(ctx context.Context, id string) (*domain.Revision, error) {
	r := &domain.Revision{}
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, page_id, seq, content, created_at FROM page_revisions WHERE id = ?`), id,
	).Scan(&r.ID, &r.PageID, &r.Seq, &r.Content, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get revision %s: %w", id, ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return r, nil
}

// PruneRevisions removes all but the newest keep revisions of every page.
func (s *RevisionStore) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	// The extra derived table lets MySQL delete from the table it selects from
	res, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`DELETE FROM page_revisions WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY page_id ORDER BY seq DESC) AS rn
				FROM page_revisions
			) ranked WHERE rn > ?
		)`), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	return res.RowsAffected()
}
