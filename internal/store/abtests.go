package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const abTestColumns = `id, test_name, template_a_id, template_b_id, start_date, end_date, status, winner_id`

// CreateABTest inserts an active test over two existing templates. Both ids
// must exist (ErrNotFound) and neither may already be part of an active test
// (ErrConflict). The checks and the insert share one transaction.
func (s *SQLiteStore) CreateABTest(ctx context.Context, name, templateA, templateB string) (*ABTest, error) {
	if templateA == templateB {
		return nil, fmt.Errorf("a test needs two distinct templates, got %s twice: %w", templateA, ErrConflict)
	}

	now := s.now()
	test := &ABTest{
		Name:        name,
		TemplateAID: templateA,
		TemplateBID: templateB,
		Status:      StatusActive,
		StartDate:   time.Unix(now.Unix(), 0),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{templateA, templateB} {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE id = ?`, id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("template %s: %w", id, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to check template %s: %w", id, err)
			}

			var activeID int64
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM template_ab_tests
				 WHERE status = 'active' AND (template_a_id = ? OR template_b_id = ?)
				 LIMIT 1`, id, id,
			).Scan(&activeID)
			if err == nil {
				return fmt.Errorf("template %s is already in active test %d: %w", id, activeID, ErrConflict)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to check active tests: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO template_ab_tests (test_name, template_a_id, template_b_id, start_date, status)
			 VALUES (?, ?, ?, ?, 'active')`,
			name, templateA, templateB, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert test: %w", err)
		}
		test.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return test, nil
}

func (s *SQLiteStore) GetABTest(ctx context.Context, id int64) (*ABTest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+abTestColumns+` FROM template_ab_tests WHERE id = ?`, id)
	t, err := scanABTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return t, nil
}

// ListABTests returns tests newest first. An empty status lists all of them.
func (s *SQLiteStore) ListABTests(ctx context.Context, status TestStatus) ([]*ABTest, error) {
	query := `SELECT ` + abTestColumns + ` FROM template_ab_tests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []*ABTest
	for rows.Next() {
		t, err := scanABTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// ActiveTestForTemplate finds the active test that references templateID.
func (s *SQLiteStore) ActiveTestForTemplate(ctx context.Context, templateID string) (*ABTest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+abTestColumns+` FROM template_ab_tests
		 WHERE status = 'active' AND (template_a_id = ? OR template_b_id = ?)
		 ORDER BY id LIMIT 1`, templateID, templateID)
	t, err := scanABTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active test: %w", err)
	}
	return t, nil
}

// AppendResult adds one accumulator row for a variant. The row keeps the
// event's own counts; its conversion_rate is the variant's cumulative rate
// read inside the same transaction (0 while there are no impressions).
func (s *SQLiteStore) AppendResult(ctx context.Context, testID int64, variantID string, impressions, conversions int, revenue float64) (*ABResult, error) {
	if impressions < 0 || conversions < 0 || revenue < 0 {
		return nil, fmt.Errorf("accumulator deltas must be non-negative")
	}

	now := s.now()
	res := &ABResult{
		TestID:      testID,
		VariantID:   variantID,
		Impressions: impressions,
		Conversions: conversions,
		Revenue:     revenue,
		Date:        time.Unix(now.Unix(), 0),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM template_ab_tests WHERE id = ?`, testID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("test %d: %w", testID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check test: %w", err)
		}

		var sumImp, sumConv int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(impressions), 0), COALESCE(SUM(conversions), 0)
			 FROM template_ab_results WHERE test_id = ? AND variant_id = ?`,
			testID, variantID,
		).Scan(&sumImp, &sumConv)
		if err != nil {
			return fmt.Errorf("failed to read accumulation: %w", err)
		}
		res.ConversionRate = Rate(sumConv+conversions, sumImp+impressions)

		result, err := tx.ExecContext(ctx,
			`INSERT INTO template_ab_results (test_id, variant_id, impressions, conversions, revenue, conversion_rate, date)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			testID, variantID, impressions, conversions, revenue, res.ConversionRate, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
		res.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// VariantTotals sums every accumulator row per variant. The rate is computed
// from the sums, never averaged from the stored per-row rates.
func (s *SQLiteStore) VariantTotals(ctx context.Context, testID int64) ([]VariantTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id,
		       COALESCE(SUM(impressions), 0),
		       COALESCE(SUM(conversions), 0),
		       COALESCE(SUM(revenue), 0)
		FROM template_ab_results
		WHERE test_id = ?
		GROUP BY variant_id
		ORDER BY variant_id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant totals: %w", err)
	}
	defer rows.Close()

	var totals []VariantTotals
	for rows.Next() {
		var v VariantTotals
		if err := rows.Scan(&v.VariantID, &v.Impressions, &v.Conversions, &v.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		v.ConversionRate = Rate(v.Conversions, v.Impressions)
		totals = append(totals, v)
	}
	return totals, rows.Err()
}

// ListResults returns the raw accumulator rows of a test, oldest first.
func (s *SQLiteStore) ListResults(ctx context.Context, testID int64) ([]*ABResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, variant_id, impressions, conversions, revenue, conversion_rate, date
		 FROM template_ab_results WHERE test_id = ? ORDER BY id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*ABResult
	for rows.Next() {
		var r ABResult
		var date int64
		if err := rows.Scan(&r.ID, &r.TestID, &r.VariantID, &r.Impressions, &r.Conversions, &r.Revenue, &r.ConversionRate, &date); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Date = time.Unix(date, 0)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// CompleteABTest moves an active test to completed with its winning template.
// winnerID must be one of the test's two templates. A test that is already
// completed yields ErrConflict and is left untouched.
func (s *SQLiteStore) CompleteABTest(ctx context.Context, testID int64, winnerID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+abTestColumns+` FROM template_ab_tests WHERE id = ?`, testID)
		test, err := scanABTest(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("test %d: %w", testID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get test: %w", err)
		}
		if test.Status != StatusActive {
			return fmt.Errorf("test %d is %s: %w", testID, test.Status, ErrConflict)
		}
		if _, ok := test.VariantFor(winnerID); !ok {
			return fmt.Errorf("winner %s is not part of test %d: %w", winnerID, testID, ErrConflict)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE template_ab_tests SET status = 'completed', winner_id = ?, end_date = ?
			 WHERE id = ? AND status = 'active'`,
			winnerID, s.now().Unix(), testID,
		)
		if err != nil {
			return fmt.Errorf("failed to complete test: %w", err)
		}
		return nil
	})
}

func scanABTest(row scanner) (*ABTest, error) {
	var t ABTest
	var startDate int64
	var endDate sql.NullInt64
	var winner sql.NullString
	var status string
	if err := row.Scan(&t.ID, &t.Name, &t.TemplateAID, &t.TemplateBID, &startDate, &endDate, &status, &winner); err != nil {
		return nil, err
	}
	t.Status = TestStatus(status)
	t.StartDate = time.Unix(startDate, 0)
	if endDate.Valid {
		e := time.Unix(endDate.Int64, 0)
		t.EndDate = &e
	}
	if winner.Valid {
		w := winner.String
		t.WinnerID = &w
	}
	return &t, nil
}

// Rate is conversions/impressions, or 0 when there are no impressions.
func Rate(conversions, impressions int) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(conversions) / float64(impressions)
}
