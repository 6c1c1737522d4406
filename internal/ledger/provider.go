package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

// Compile-time check that the store satisfies the capability contract.
var _ capability.Provider = (*Store)(nil)

// Trades returns fills inside the lookback window, oldest first.
func (s *Store) Trades(ctx context.Context, f capability.TradeFilter) (*capability.Dataset, error) {
	since := time.Now().UTC().AddDate(0, 0, -f.Days)

	q := s.db.WithContext(ctx).
		Where("executed_at >= ?", since).
		Order("executed_at ASC")
	if f.Venue != "" {
		q = q.Where("venue = ?", f.Venue)
	}
	if f.Asset != "" {
		q = q.Where("asset = ?", f.Asset)
	}

	var models []TradeFillModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying trade fills: %w", err)
	}

	ds := &capability.Dataset{
		Columns: []string{"venue", "asset", "side", "qty", "price", "fee", "executed_at"},
		Rows:    make([][]any, len(models)),
	}
	for i := range models {
		m := &models[i]
		ds.Rows[i] = []any{m.Venue, m.Asset, m.Side, m.Qty, m.Price, m.Fee, m.ExecutedAt}
	}
	return ds, nil
}

// Balances returns the current holdings, grouped by venue then asset.
func (s *Store) Balances(ctx context.Context) (*capability.Dataset, error) {
	var models []BalanceRowModel
	err := s.db.WithContext(ctx).
		Order("venue ASC, asset ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying balances: %w", err)
	}

	ds := &capability.Dataset{
		Columns: []string{"venue", "asset", "free", "locked"},
		Rows:    make([][]any, len(models)),
	}
	for i := range models {
		m := &models[i]
		ds.Rows[i] = []any{m.Venue, m.Asset, m.Free, m.Locked}
	}
	return ds, nil
}

// History returns valuation snapshots inside the age window, oldest first.
func (s *Store) History(ctx context.Context, days int) (*capability.Dataset, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var models []ValuationSnapshotModel
	err := s.db.WithContext(ctx).
		Where("as_of >= ?", since).
		Order("as_of ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying valuation history: %w", err)
	}

	ds := &capability.Dataset{
		Columns: []string{"as_of", "total_usd", "venues"},
		Rows:    make([][]any, len(models)),
	}
	for i := range models {
		m := &models[i]
		ds.Rows[i] = []any{m.AsOf, m.TotalUSD, m.Venues}
	}
	return ds, nil
}
