// Package store provides persistence for cached transactions, segment
// coverage, and the monthly cache index.
//
// # Layout
//
// The filesystem backend stores JSON files under the cache root:
//
//	transactions/<source>/YYYY/MM.json   cached rows for one calendar month
//	segments/<source>.json               fetched-range coverage for one source
//	monthly/<source>.json                monthly cache index entries
//
// Transaction rows are the source of truth. Segments and the monthly index
// are derived coverage indices maintained independently; they can drift from
// the rows and from each other, and that drift is detected (not prevented)
// by the cache admin operations.
package store

import (
	"time"

	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
)

// MonthStatus describes how much of a calendar month the index believes is
// cached. Complete asserts the whole month; partial and unknown do not.
type MonthStatus string

const (
	StatusComplete MonthStatus = "complete"
	StatusPartial  MonthStatus = "partial"
	StatusUnknown  MonthStatus = "unknown"
)

// MonthKey identifies one (source, year, month) combination.
type MonthKey struct {
	Source model.Source `json:"source"`
	Year   int          `json:"year"`
	Month  int          `json:"month"`
}

// MonthlyEntry is one row of the monthly cache index.
// TransactionCount is the row count at last sync, not a live value.
type MonthlyEntry struct {
	Source           model.Source `json:"source"`
	Year             int          `json:"year"`
	Month            int          `json:"month"`
	TransactionCount int          `json:"transaction_count"`
	Status           MonthStatus  `json:"status"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Key returns the entry's month key.
func (e MonthlyEntry) Key() MonthKey {
	return MonthKey{Source: e.Source, Year: e.Year, Month: e.Month}
}

// TransactionStore persists individual transaction rows.
type TransactionStore interface {
	// UpsertTransactions writes rows idempotently, keyed by (source, id).
	UpsertTransactions(source model.Source, txs []model.Transaction) error

	// ReadTransactions returns rows with dates in [start, end], sorted by
	// date then id. Pure read: no coverage side effects.
	ReadTransactions(source model.Source, start, end time.Time) ([]model.Transaction, error)

	// CountTransactions counts rows with dates in [start, end].
	CountTransactions(source model.Source, start, end time.Time) (int, error)

	// CountMonth counts rows for one (source, year, month).
	CountMonth(source model.Source, year, month int) (int, error)

	// DeleteTransactions removes rows in [start, end] and reports how many.
	DeleteTransactions(source model.Source, start, end time.Time) (int, error)

	// DeleteAllTransactions removes every row for the source.
	DeleteAllTransactions(source model.Source) (int, error)

	// DistinctMonths lists every (source, year, month) that has at least
	// one row, in stable order.
	DistinctMonths() ([]MonthKey, error)
}

// SegmentStore persists which date ranges have been fully fetched per source.
type SegmentStore interface {
	// LoadSegments returns the coverage set for the source (empty when none).
	LoadSegments(source model.Source) (*interval.Set, error)

	// SaveSegments replaces the stored coverage for the source.
	SaveSegments(source model.Source, set *interval.Set) error
}

// MonthlyIndexStore persists the monthly cache index.
type MonthlyIndexStore interface {
	// GetMonthlyEntry returns the entry or nil when absent.
	GetMonthlyEntry(source model.Source, year, month int) (*MonthlyEntry, error)

	// UpsertMonthlyEntry creates or replaces the entry for its key.
	UpsertMonthlyEntry(entry MonthlyEntry) error

	// ListMonthlyEntries returns all entries in stable order.
	ListMonthlyEntries() ([]MonthlyEntry, error)
}

// Backend bundles the three stores behind one implementation.
type Backend interface {
	TransactionStore
	SegmentStore
	MonthlyIndexStore
}
