package ledger

import (
	"context"
	"time"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

// Fixture is an in-memory provider serving the same demo portfolio that
// Seed writes, with no database behind it. It backs tests and the CLI's
// zero-config mode. All rows are generated once at construction and the
// window filters compare against the construction anchor, so results are
// stable for the life of the fixture. Read-only after construction, safe
// for concurrent use.
type Fixture struct {
	anchor    time.Time
	fills     []TradeFillModel
	balances  []BalanceRowModel
	snapshots []ValuationSnapshotModel
}

var _ capability.Provider = (*Fixture)(nil)

// NewFixture builds the demo portfolio anchored at the current hour.
func NewFixture() *Fixture {
	now := time.Now().UTC().Truncate(time.Hour)
	return &Fixture{
		anchor:    now,
		fills:     demoFills(now),
		balances:  demoBalances(now),
		snapshots: demoSnapshots(now),
	}
}

func (f *Fixture) Trades(ctx context.Context, filter capability.TradeFilter) (*capability.Dataset, error) {
	since := f.anchor.AddDate(0, 0, -filter.Days)

	ds := &capability.Dataset{
		Columns: []string{"venue", "asset", "side", "qty", "price", "fee", "executed_at"},
	}
	for i := range f.fills {
		m := &f.fills[i]
		if m.ExecutedAt.Before(since) {
			continue
		}
		if filter.Venue != "" && m.Venue != filter.Venue {
			continue
		}
		if filter.Asset != "" && m.Asset != filter.Asset {
			continue
		}
		ds.Rows = append(ds.Rows, []any{m.Venue, m.Asset, m.Side, m.Qty, m.Price, m.Fee, m.ExecutedAt})
	}
	return ds, nil
}

func (f *Fixture) Balances(ctx context.Context) (*capability.Dataset, error) {
	ds := &capability.Dataset{
		Columns: []string{"venue", "asset", "free", "locked"},
		Rows:    make([][]any, len(f.balances)),
	}
	for i := range f.balances {
		m := &f.balances[i]
		ds.Rows[i] = []any{m.Venue, m.Asset, m.Free, m.Locked}
	}
	return ds, nil
}

func (f *Fixture) History(ctx context.Context, days int) (*capability.Dataset, error) {
	since := f.anchor.AddDate(0, 0, -days)

	ds := &capability.Dataset{
		Columns: []string{"as_of", "total_usd", "venues"},
	}
	for i := range f.snapshots {
		m := &f.snapshots[i]
		if m.AsOf.Before(since) {
			continue
		}
		ds.Rows = append(ds.Rows, []any{m.AsOf, m.TotalUSD, m.Venues})
	}
	return ds, nil
}
