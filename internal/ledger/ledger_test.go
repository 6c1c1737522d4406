package ledger

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	}, nil)
	if err != nil {
		t.Fatalf("opening test ledger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Errors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown driver", Config{Driver: "mysql"}, "unknown ledger driver"},
		{"sqlite without path", Config{Driver: DriverSQLite}, "requires a database path"},
		{"postgres without dsn", Config{Driver: DriverPostgres}, "requires a DSN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Open error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestStore_OpenAndPing(t *testing.T) {
	s := openTestStore(t)
	if s.Driver() != DriverSQLite {
		t.Errorf("driver = %q", s.Driver())
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestStore_SeedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Seed(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 82 {
		t.Errorf("seeded rows = %d, want 82", n)
	}

	again, err := s.Seed(ctx)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if again != 0 {
		t.Errorf("second seed wrote %d rows, want 0", again)
	}
}

func TestStore_Provider(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A window wider than the seeded history returns every fill.
	all, err := s.Trades(ctx, capability.TradeFilter{Days: 15})
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(all.Rows) != 42 {
		t.Errorf("15-day rows = %d, want 42", len(all.Rows))
	}

	// Narrower windows drop older fills.
	week, err := s.Trades(ctx, capability.TradeFilter{Days: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(week.Rows) >= len(all.Rows) || len(week.Rows) == 0 {
		t.Errorf("8-day rows = %d, want fewer than %d and more than 0", len(week.Rows), len(all.Rows))
	}

	kraken, err := s.Trades(ctx, capability.TradeFilter{Days: 15, Venue: "kraken"})
	if err != nil {
		t.Fatal(err)
	}
	if len(kraken.Rows) != 14 {
		t.Errorf("kraken rows = %d, want 14", len(kraken.Rows))
	}
	for _, row := range kraken.Rows {
		if row[0] != "kraken" {
			t.Errorf("venue filter leaked row %v", row)
		}
	}

	balances, err := s.Balances(ctx)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(balances.Rows) != 9 {
		t.Fatalf("balance rows = %d, want 9", len(balances.Rows))
	}
	if balances.Rows[0][0] != "binance" || balances.Rows[0][1] != "BTC" {
		t.Errorf("first balance row = %v, want binance/BTC ordering", balances.Rows[0])
	}

	history, err := s.History(ctx, 31)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Rows) != 31 {
		t.Errorf("31-day history rows = %d, want 31", len(history.Rows))
	}
	if history.Rows[0][1] != 250000.0 {
		t.Errorf("oldest total = %v, want 250000", history.Rows[0][1])
	}
}
