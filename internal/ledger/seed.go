package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Seed populates an empty ledger with a deterministic demo portfolio:
// two weeks of fills across three venues, current balances, and daily
// valuation snapshots. Rows are anchored to the current day so window
// queries return data. A non-empty ledger is left untouched.
func (s *Store) Seed(ctx context.Context) (int, error) {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&TradeFillModel{}).Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("checking ledger state: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	now := time.Now().UTC().Truncate(time.Hour)
	fills := demoFills(now)
	balances := demoBalances(now)
	snapshots := demoSnapshots(now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&fills).Error; err != nil {
			return fmt.Errorf("seeding trade fills: %w", err)
		}
		if err := tx.Create(&balances).Error; err != nil {
			return fmt.Errorf("seeding balances: %w", err)
		}
		if err := tx.Create(&snapshots).Error; err != nil {
			return fmt.Errorf("seeding valuation snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := len(fills) + len(balances) + len(snapshots)
	return total, nil
}

var demoVenues = []string{"binance", "coinbase", "kraken"}

var demoAssets = []struct {
	symbol string
	price  float64
}{
	{"BTC", 64000},
	{"ETH", 3100},
	{"SOL", 145},
}

// demoFills spreads buys and sells over the last 14 days. Quantities and
// prices follow fixed formulas so repeated seeds of a fresh database
// produce identical tables.
func demoFills(now time.Time) []TradeFillModel {
	var fills []TradeFillModel
	for day := 14; day >= 1; day-- {
		for vi, venue := range demoVenues {
			asset := demoAssets[(day+vi)%len(demoAssets)]
			side := "buy"
			if (day+vi)%3 == 0 {
				side = "sell"
			}
			qty := math.Round((0.05+0.01*float64(day))*1000) / 1000
			price := asset.price * (1 + 0.002*float64(day-7))
			fills = append(fills, TradeFillModel{
				ID:         uuid.New(),
				Venue:      venue,
				Asset:      asset.symbol,
				Side:       side,
				Qty:        qty,
				Price:      math.Round(price*100) / 100,
				Fee:        math.Round(qty*price*0.001*100) / 100,
				ExecutedAt: now.AddDate(0, 0, -day).Add(time.Duration(vi) * time.Hour),
			})
		}
	}
	return fills
}

func demoBalances(now time.Time) []BalanceRowModel {
	var rows []BalanceRowModel
	for vi, venue := range demoVenues {
		for ai, asset := range demoAssets {
			rows = append(rows, BalanceRowModel{
				ID:        uuid.New(),
				Venue:     venue,
				Asset:     asset.symbol,
				Free:      0.5 + 0.25*float64(vi+ai),
				Locked:    0.1 * float64(ai),
				UpdatedAt: now,
			})
		}
	}
	return rows
}

func demoSnapshots(now time.Time) []ValuationSnapshotModel {
	var snaps []ValuationSnapshotModel
	for day := 30; day >= 0; day-- {
		total := 250000 * (1 + 0.004*float64(30-day))
		snaps = append(snaps, ValuationSnapshotModel{
			ID:       uuid.New(),
			AsOf:     now.AddDate(0, 0, -day),
			TotalUSD: math.Round(total*100) / 100,
			Venues:   len(demoVenues),
		})
	}
	return snaps
}
