package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateProduct records a product instantiated from a template.
func (s *SQLiteStore) CreateProduct(ctx context.Context, p *Product) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	kind := p.Type
	if kind == "" {
		kind = "digital"
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, price, type, template_id, ab_test_variant, sales_count, total_revenue, created_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Price, kind, nullableString(p.TemplateID), nullableString(p.ABTestVariant),
		p.SalesCount, p.TotalRevenue, p.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.Type = kind
	return id, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	var templateID, variant sql.NullString
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price, type, template_id, ab_test_variant, sales_count, total_revenue, created_date
		 FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Type, &templateID, &variant, &p.SalesCount, &p.TotalRevenue, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.TemplateID = templateID.String
	p.ABTestVariant = variant.String
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// RecordSale bumps a product's counters and appends a revenue row.
func (s *SQLiteStore) RecordSale(ctx context.Context, productID int64, amount float64, source string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE products SET sales_count = sales_count + 1, total_revenue = total_revenue + ? WHERE id = ?`,
			amount, productID)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO revenue (source, amount, description, product_id, timestamp) VALUES (?, ?, ?, ?, ?)`,
			source, amount, fmt.Sprintf("sale of product %d", productID), productID, s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert revenue: %w", err)
		}
		return nil
	})
}

// TemplateRevenue aggregates every product created from templateID. All
// fields are zero when no product references it.
func (s *SQLiteStore) TemplateRevenue(ctx context.Context, templateID string) (TemplateRevenue, error) {
	tr := TemplateRevenue{TemplateID: templateID}
	var sales sql.NullInt64
	var revenue, price sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(sales_count), SUM(total_revenue), AVG(price)
		FROM products WHERE template_id = ?
	`, templateID).Scan(&tr.ProductCount, &sales, &revenue, &price)
	if err != nil {
		return TemplateRevenue{}, fmt.Errorf("failed to aggregate template revenue: %w", err)
	}
	tr.TotalSales = int(sales.Int64)
	tr.TotalRevenue = revenue.Float64
	tr.AvgPrice = price.Float64
	return tr, nil
}

// AverageTemplatedRevenue is the mean total_revenue over every product that
// has a template id.
func (s *SQLiteStore) AverageTemplatedRevenue(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(total_revenue) FROM products WHERE template_id IS NOT NULL`,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average revenue: %w", err)
	}
	return avg.Float64, nil
}

// TemplatesBelowRevenue lists templates whose summed product revenue is
// strictly below cutoff. Product template ids with no stored template are
// left out.
func (s *SQLiteStore) TemplatesBelowRevenue(ctx context.Context, cutoff float64) ([]TemplateRevenue, error) {
	return s.groupTemplates(ctx, `
		SELECT p.template_id, COUNT(*), SUM(p.sales_count), SUM(p.total_revenue), AVG(p.price)
		FROM products p
		JOIN templates t ON t.id = p.template_id
		GROUP BY p.template_id
		HAVING SUM(p.total_revenue) < ?
		ORDER BY SUM(p.total_revenue), p.template_id
	`, cutoff)
}

// TopTemplatesByRevenue lists templates with positive revenue, best first.
func (s *SQLiteStore) TopTemplatesByRevenue(ctx context.Context, limit int) ([]TemplateRevenue, error) {
	return s.groupTemplates(ctx, `
		SELECT template_id, COUNT(*), SUM(sales_count), SUM(total_revenue), AVG(price)
		FROM products
		WHERE template_id IS NOT NULL AND total_revenue > 0
		GROUP BY template_id
		ORDER BY SUM(total_revenue) DESC, template_id
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) groupTemplates(ctx context.Context, query string, args ...any) ([]TemplateRevenue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group templates: %w", err)
	}
	defer rows.Close()

	var out []TemplateRevenue
	for rows.Next() {
		var tr TemplateRevenue
		var sales sql.NullInt64
		var revenue, price sql.NullFloat64
		if err := rows.Scan(&tr.TemplateID, &tr.ProductCount, &sales, &revenue, &price); err != nil {
			return nil, fmt.Errorf("failed to scan template revenue: %w", err)
		}
		tr.TotalSales = int(sales.Int64)
		tr.TotalRevenue = revenue.Float64
		tr.AvgPrice = price.Float64
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountProductsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE created_date >= ?`, since.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) RevenueSince(ctx context.Context, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(amount) FROM revenue WHERE timestamp >= ?`, since.Unix(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total.Float64, nil
}
