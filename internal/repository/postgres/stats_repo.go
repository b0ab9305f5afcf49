package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/segment"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BillStatsRepository reads the per-customer purchase history the
// segmentation engine consumes. The bills and customers tables belong to the
// surrounding POS layer; this repository only depends on their read contract:
// bills(tenant_id, customer_id, total, created_at) and
// customers(id, tenant_id, customer_type, created_at).
type BillStatsRepository struct {
	db *pgxpool.Pool
}

func NewBillStatsRepository(db *pgxpool.Pool) *BillStatsRepository {
	return &BillStatsRepository{db: db}
}

// CustomerFeatures returns RFM inputs for every customer of the tenant with
// at least one bill, ordered by customer id for deterministic runs.
func (r *BillStatsRepository) CustomerFeatures(ctx context.Context, tenantID int64, now time.Time) ([]segment.CustomerFeatures, error) {
	query := `
		SELECT
			c.id,
			COUNT(b.total),
			COALESCE(SUM(b.total), 0),
			COALESCE(AVG(b.total), 0),
			COALESCE(EXTRACT(EPOCH FROM ($2 - MAX(b.created_at))) / 86400, $3),
			COALESCE(EXTRACT(EPOCH FROM ($2 - c.created_at)) / 86400, 0),
			COALESCE(NULLIF(c.customer_type, ''), 'individual')
		FROM customers c
		JOIN bills b ON b.customer_id = c.id AND b.tenant_id = c.tenant_id
		WHERE c.tenant_id = $1
		GROUP BY c.id, c.created_at, c.customer_type
		ORDER BY c.id ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, now, segment.NeverOrderedSentinel)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer features: %w", MapError(err))
	}
	defer rows.Close()

	feats := []segment.CustomerFeatures{}
	for rows.Next() {
		var f segment.CustomerFeatures
		if err := rows.Scan(
			&f.CustomerID, &f.TotalOrders, &f.TotalSpent, &f.AvgOrderValue,
			&f.DaysSinceLastOrder, &f.LifetimeDays, &f.CustomerType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer features: %w", err)
		}
		feats = append(feats, f)
	}

	return feats, rows.Err()
}
