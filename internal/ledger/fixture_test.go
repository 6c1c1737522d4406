package ledger

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

// --- Demo portfolio shape ---

func TestDemoGenerators_RowCounts(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if got := len(demoFills(now)); got != 42 {
		t.Errorf("fills = %d, want 42 (14 days x 3 venues)", got)
	}
	if got := len(demoBalances(now)); got != 9 {
		t.Errorf("balances = %d, want 9 (3 venues x 3 assets)", got)
	}
	if got := len(demoSnapshots(now)); got != 31 {
		t.Errorf("snapshots = %d, want 31 (day 30 through today)", got)
	}
}

func TestDemoFills_Formulas(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	fills := demoFills(now)

	for _, f := range fills {
		if f.Side != "buy" && f.Side != "sell" {
			t.Errorf("side = %q", f.Side)
		}
		if f.Qty <= 0 || f.Price <= 0 || f.Fee < 0 {
			t.Errorf("non-positive fill: qty %v price %v fee %v", f.Qty, f.Price, f.Fee)
		}
		if f.ExecutedAt.After(now) {
			t.Errorf("fill in the future: %v", f.ExecutedAt)
		}
	}

	// First generated fill is the oldest: day 14 on the first venue.
	first := fills[0]
	if first.Venue != "binance" {
		t.Errorf("first venue = %q, want binance", first.Venue)
	}
	if first.Qty != 0.19 {
		t.Errorf("day-14 qty = %v, want 0.19", first.Qty)
	}
	if got := first.ExecutedAt; !got.Equal(now.AddDate(0, 0, -14)) {
		t.Errorf("first fill at %v, want 14 days back", got)
	}
}

// --- Fixture provider ---

func TestFixture_Balances(t *testing.T) {
	f := NewFixture()
	ds, err := f.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances error: %v", err)
	}

	wantCols := []string{"venue", "asset", "free", "locked"}
	if !reflect.DeepEqual(ds.Columns, wantCols) {
		t.Errorf("columns = %v, want %v", ds.Columns, wantCols)
	}
	if len(ds.Rows) != 9 {
		t.Fatalf("rows = %d, want 9", len(ds.Rows))
	}
	first := ds.Rows[0]
	if first[0] != "binance" || first[1] != "BTC" || first[2] != 0.5 || first[3] != 0.0 {
		t.Errorf("first balance row = %v", first)
	}
}

func TestFixture_TradesWindows(t *testing.T) {
	f := NewFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		days int
		want int
	}{
		{"full history", 14, 42},
		{"one week", 7, 21},
		{"one day", 1, 3},
		{"beyond history", 365, 42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := f.Trades(ctx, capability.TradeFilter{Days: tc.days})
			if err != nil {
				t.Fatalf("Trades error: %v", err)
			}
			if len(ds.Rows) != tc.want {
				t.Errorf("rows = %d, want %d", len(ds.Rows), tc.want)
			}
		})
	}
}

func TestFixture_TradesFilters(t *testing.T) {
	f := NewFixture()
	ctx := context.Background()

	byVenue, err := f.Trades(ctx, capability.TradeFilter{Days: 14, Venue: "kraken"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byVenue.Rows) != 14 {
		t.Errorf("kraken rows = %d, want 14", len(byVenue.Rows))
	}
	for _, row := range byVenue.Rows {
		if row[0] != "kraken" {
			t.Errorf("venue filter leaked row %v", row)
		}
	}

	byAsset, err := f.Trades(ctx, capability.TradeFilter{Days: 14, Asset: "BTC"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byAsset.Rows) != 14 {
		t.Errorf("BTC rows = %d, want 14", len(byAsset.Rows))
	}

	both, err := f.Trades(ctx, capability.TradeFilter{Days: 14, Venue: "kraken", Asset: "BTC"})
	if err != nil {
		t.Fatal(err)
	}
	if len(both.Rows) != 5 {
		t.Errorf("kraken BTC rows = %d, want 5", len(both.Rows))
	}

	none, err := f.Trades(ctx, capability.TradeFilter{Days: 14, Venue: "bitmex"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none.Rows) != 0 {
		t.Errorf("unknown venue rows = %d, want 0", len(none.Rows))
	}
}

func TestFixture_History(t *testing.T) {
	f := NewFixture()
	ds, err := f.History(context.Background(), 30)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(ds.Rows) != 31 {
		t.Fatalf("rows = %d, want 31", len(ds.Rows))
	}

	first, last := ds.Rows[0], ds.Rows[len(ds.Rows)-1]
	if first[1] != 250000.0 {
		t.Errorf("oldest total = %v, want 250000", first[1])
	}
	if last[1] != 280000.0 {
		t.Errorf("latest total = %v, want 280000", last[1])
	}
	if !first[0].(time.Time).Before(last[0].(time.Time)) {
		t.Error("history is not in ascending time order")
	}

	week, err := f.History(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(week.Rows) != 8 {
		t.Errorf("7-day rows = %d, want 8", len(week.Rows))
	}
}

func TestFixture_StableAcrossCalls(t *testing.T) {
	f := NewFixture()
	ctx := context.Background()

	first, err := f.Trades(ctx, capability.TradeFilter{Days: 7})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Trades(ctx, capability.TradeFilter{Days: 7})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated identical queries returned different datasets")
	}
}

// Every cell must be a type the script boundary can convert.
func TestFixture_CellTypes(t *testing.T) {
	f := NewFixture()
	ctx := context.Background()

	datasets := make([]*capability.Dataset, 0, 3)
	if ds, err := f.Trades(ctx, capability.TradeFilter{Days: 14}); err == nil {
		datasets = append(datasets, ds)
	} else {
		t.Fatal(err)
	}
	if ds, err := f.Balances(ctx); err == nil {
		datasets = append(datasets, ds)
	} else {
		t.Fatal(err)
	}
	if ds, err := f.History(ctx, 30); err == nil {
		datasets = append(datasets, ds)
	} else {
		t.Fatal(err)
	}

	for _, ds := range datasets {
		for _, row := range ds.Rows {
			if len(row) != len(ds.Columns) {
				t.Fatalf("row width %d, want %d", len(row), len(ds.Columns))
			}
			for i, cell := range row {
				switch cell.(type) {
				case string, float64, int, int64, bool, time.Time:
				default:
					t.Errorf("column %q holds unsupported type %T", ds.Columns[i], cell)
				}
			}
		}
	}
}
