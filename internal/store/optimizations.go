package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveOptimization stores a regenerated template together with the audit
// event that references it. Either both rows land or neither does.
func (s *SQLiteStore) SaveOptimization(ctx context.Context, t *Template, ev *OptimizationEvent) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if ev.Date.IsZero() {
		ev.Date = now
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTemplate(ctx, tx, t); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO template_optimization_history (template_id, optimization_type, before_metrics, metadata, date)
			 VALUES (?, ?, ?, ?, ?)`,
			ev.TemplateID, ev.OptimizationType, nullableString(ev.BeforeMetrics), nullableString(ev.Metadata), ev.Date.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert optimization event: %w", err)
		}
		if ev.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
}

// ListOptimizations returns audit events newest first. An empty templateID
// lists every event.
func (s *SQLiteStore) ListOptimizations(ctx context.Context, templateID string) ([]*OptimizationEvent, error) {
	query := `SELECT id, template_id, optimization_type, before_metrics, metadata, date
		FROM template_optimization_history`
	var args []any
	if templateID != "" {
		query += ` WHERE template_id = ?`
		args = append(args, templateID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimizations: %w", err)
	}
	defer rows.Close()

	var events []*OptimizationEvent
	for rows.Next() {
		var ev OptimizationEvent
		var before, meta sql.NullString
		var date int64
		if err := rows.Scan(&ev.ID, &ev.TemplateID, &ev.OptimizationType, &before, &meta, &date); err != nil {
			return nil, fmt.Errorf("failed to scan optimization: %w", err)
		}
		ev.BeforeMetrics = before.String
		ev.Metadata = meta.String
		ev.Date = time.Unix(date, 0)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// RecordMetric appends to performance_metrics.
func (s *SQLiteStore) RecordMetric(ctx context.Context, m Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO performance_metrics (metric_type, metric_name, value, source, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Type, m.Name, m.Value, nullableString(m.Source), nullableString(m.Meta), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}
