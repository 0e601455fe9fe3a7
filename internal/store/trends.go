package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertTrends appends observations in one transaction. Records without a
// timestamp are stamped with the store clock.
func (s *SQLiteStore) InsertTrends(ctx context.Context, records []TrendRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO trend_analysis (topic, source, keyword, trend_score, volume, timestamp, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare trend insert: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			r := &records[i]
			if r.Keyword == "" {
				return fmt.Errorf("trend record %d: keyword is required", i)
			}
			if r.Topic == "" {
				r.Topic = r.Keyword
			}
			if r.Timestamp.IsZero() {
				r.Timestamp = s.now()
			}
			result, err := stmt.ExecContext(ctx, r.Topic, r.Source, r.Keyword, r.TrendScore, r.Volume, r.Timestamp.Unix(), nullableString(r.Metadata))
			if err != nil {
				return fmt.Errorf("failed to insert trend: %w", err)
			}
			if r.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}

// TopTrends groups observations at or after since by (keyword, topic, source)
// and orders them by mean score, then summed volume.
func (s *SQLiteStore) TopTrends(ctx context.Context, since time.Time, limit int) ([]TrendAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, topic, source, AVG(trend_score) AS avg_score, SUM(volume) AS total_volume
		FROM trend_analysis
		WHERE timestamp >= ?
		GROUP BY keyword, topic, source
		ORDER BY avg_score DESC, total_volume DESC, keyword, source
		LIMIT ?
	`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top trends: %w", err)
	}
	defer rows.Close()

	var trends []TrendAggregate
	for rows.Next() {
		var a TrendAggregate
		var avg sql.NullFloat64
		var vol sql.NullInt64
		if err := rows.Scan(&a.Keyword, &a.Topic, &a.Source, &avg, &vol); err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		a.AvgScore = avg.Float64
		a.TotalVolume = int(vol.Int64)
		trends = append(trends, a)
	}
	return trends, rows.Err()
}

// Now exposes the store clock so callers compute windows on the same time base.
func (s *SQLiteStore) Now() time.Time {
	return s.now()
}
