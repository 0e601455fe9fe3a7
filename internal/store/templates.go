package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const templateColumns = `id, topic, content, parent_id, source, created_at`

func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *Template) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	return insertTemplate(ctx, s.db, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTemplate(ctx context.Context, db execer, t *Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	source := t.Source
	if source == "" {
		source = "manual"
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO templates (id, topic, content, parent_id, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Topic, t.Content, nullableString(t.ParentID), source, t.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("template %s already exists: %w", t.ID, ErrConflict)
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}
	t.Source = source
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// LastGeneratedAt reports when a template was last produced by the generator.
func (s *SQLiteStore) LastGeneratedAt(ctx context.Context) (time.Time, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM templates WHERE source = 'generated'`,
	).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last generation time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(last.Int64, 0), true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*Template, error) {
	var t Template
	var parent sql.NullString
	var createdAt int64
	if err := row.Scan(&t.ID, &t.Topic, &t.Content, &parent, &t.Source, &createdAt); err != nil {
		return nil, err
	}
	t.ParentID = parent.String
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}
