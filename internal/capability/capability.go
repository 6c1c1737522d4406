// Package capability defines the read-only data functions injected into
// analysis scripts: trade snapshots, venue balances, and valuation history.
// Scripts can call these and nothing else that touches data — the capability
// surface is the entire boundary between a script and the outside world.
package capability

import (
	"context"
	"fmt"
)

// Capability names as scripts see them.
const (
	NameTrades   = "get_trades"
	NameBalances = "get_balances"
	NameHistory  = "get_history"
)

// Names returns the injected function names, in binding order.
func Names() []string {
	return []string{NameTrades, NameBalances, NameHistory}
}

// Default lookback windows, in days.
const (
	DefaultTradeDays   = 7
	DefaultHistoryDays = 30
	MaxWindowDays      = 365
)

// Dataset is a tabular payload returned by a provider. Once returned it is
// treated as immutable: consumers convert it to fresh script values and
// never hand out the backing slices.
type Dataset struct {
	Columns []string
	Rows    [][]any // cells are int, int64, float64, string, bool, or time.Time
}

// TradeFilter narrows a trade snapshot request.
type TradeFilter struct {
	Days  int    // lookback window; callers pass a positive value
	Venue string // empty = all venues
	Asset string // empty = all assets
}

// Provider supplies the data behind the capability functions.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods must honor cancellation and return promptly.
//   - Ownership: returned datasets belong to the caller and must not be
//     mutated by the provider afterwards.
//   - Purity: calls must not observe or depend on script state.
type Provider interface {
	Trades(ctx context.Context, f TradeFilter) (*Dataset, error)
	Balances(ctx context.Context) (*Dataset, error)
	History(ctx context.Context, days int) (*Dataset, error)
}

// Call is one canonicalized capability invocation. Two calls with the same
// Key load the same data.
type Call struct {
	Name  string
	Days  int
	Venue string
	Asset string
}

// Key returns the canonical cache key for the call.
func (c Call) Key() string {
	return fmt.Sprintf("%s|days=%d|venue=%s|asset=%s", c.Name, c.Days, c.Venue, c.Asset)
}

// Validate rejects out-of-range arguments before any load happens.
func (c Call) Validate() error {
	switch c.Name {
	case NameTrades, NameHistory:
		if c.Days <= 0 {
			return fmt.Errorf("%s: days must be positive, got %d", c.Name, c.Days)
		}
		if c.Days > MaxWindowDays {
			return fmt.Errorf("%s: days must be at most %d, got %d", c.Name, MaxWindowDays, c.Days)
		}
	case NameBalances:
		// No arguments.
	default:
		return fmt.Errorf("unknown capability %q", c.Name)
	}
	return nil
}

// Loader fetches the dataset for one call. The engine wires this through the
// data cache; tests may wire it straight to a provider.
type Loader func(ctx context.Context, call Call) (*Dataset, error)

// Dispatch routes a call to the matching provider method.
func Dispatch(ctx context.Context, p Provider, call Call) (*Dataset, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	switch call.Name {
	case NameTrades:
		return p.Trades(ctx, TradeFilter{Days: call.Days, Venue: call.Venue, Asset: call.Asset})
	case NameBalances:
		return p.Balances(ctx)
	case NameHistory:
		return p.History(ctx, call.Days)
	default:
		return nil, fmt.Errorf("unknown capability %q", call.Name)
	}
}
