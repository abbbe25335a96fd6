package store

import (
	"sort"
	"sync"
	"time"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
)

// MemoryBackend is an in-memory backend for testing.
type MemoryBackend struct {
	mu       sync.RWMutex
	txs      map[string]model.Transaction // keyed by (source, id)
	segments map[model.Source][]interval.Interval
	monthly  map[MonthKey]MonthlyEntry
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		txs:      make(map[string]model.Transaction),
		segments: make(map[model.Source][]interval.Interval),
		monthly:  make(map[MonthKey]MonthlyEntry),
	}
}

// UpsertTransactions writes rows idempotently, keyed by (source, id).
func (b *MemoryBackend) UpsertTransactions(source model.Source, txs []model.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range txs {
		tx.Source = source
		tx = tx.Normalize()
		b.txs[tx.Key()] = tx
	}
	return nil
}

// ReadTransactions returns rows in [start, end], sorted by date then id.
func (b *MemoryBackend) ReadTransactions(source model.Source, start, end time.Time) ([]model.Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := core.DateOnly(start)
	e := core.DateOnly(end)
	out := make([]model.Transaction, 0)
	for _, tx := range b.txs {
		if tx.Source != source {
			continue
		}
		if tx.Date.Before(s) || tx.Date.After(e) {
			continue
		}
		out = append(out, tx)
	}
	sortTransactions(out)
	return out, nil
}

// CountTransactions counts rows in [start, end].
func (b *MemoryBackend) CountTransactions(source model.Source, start, end time.Time) (int, error) {
	txs, err := b.ReadTransactions(source, start, end)
	if err != nil {
		return 0, err
	}
	return len(txs), nil
}

// CountMonth counts rows for one (source, year, month).
func (b *MemoryBackend) CountMonth(source model.Source, year, month int) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, tx := range b.txs {
		if tx.Source == source && tx.Year == year && tx.Month == month {
			count++
		}
	}
	return count, nil
}

// DeleteTransactions removes rows in [start, end].
func (b *MemoryBackend) DeleteTransactions(source model.Source, start, end time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := core.DateOnly(start)
	e := core.DateOnly(end)
	deleted := 0
	for key, tx := range b.txs {
		if tx.Source != source {
			continue
		}
		if tx.Date.Before(s) || tx.Date.After(e) {
			continue
		}
		delete(b.txs, key)
		deleted++
	}
	return deleted, nil
}

// DeleteAllTransactions removes every row for the source.
func (b *MemoryBackend) DeleteAllTransactions(source model.Source) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for key, tx := range b.txs {
		if tx.Source == source {
			delete(b.txs, key)
			deleted++
		}
	}
	return deleted, nil
}

// DistinctMonths lists every (source, year, month) with at least one row.
func (b *MemoryBackend) DistinctMonths() ([]MonthKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[MonthKey]bool)
	for _, tx := range b.txs {
		seen[MonthKey{Source: tx.Source, Year: tx.Year, Month: tx.Month}] = true
	}
	out := make([]MonthKey, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sortMonthKeys(out)
	return out, nil
}

// LoadSegments returns the coverage set for the source.
func (b *MemoryBackend) LoadSegments(source model.Source) (*interval.Set, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return interval.NewSet(b.segments[source]...), nil
}

// SaveSegments replaces the stored coverage for the source.
func (b *MemoryBackend) SaveSegments(source model.Source, set *interval.Set) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments[source] = set.Intervals()
	return nil
}

// GetMonthlyEntry returns the entry or nil when absent.
func (b *MemoryBackend) GetMonthlyEntry(source model.Source, year, month int) (*MonthlyEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.monthly[MonthKey{Source: source, Year: year, Month: month}]; ok {
		entryCopy := entry
		return &entryCopy, nil
	}
	return nil, nil
}

// UpsertMonthlyEntry creates or replaces the entry for its key.
func (b *MemoryBackend) UpsertMonthlyEntry(entry MonthlyEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monthly[entry.Key()] = entry
	return nil
}

// ListMonthlyEntries returns all entries in stable order.
func (b *MemoryBackend) ListMonthlyEntries() ([]MonthlyEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]MonthlyEntry, 0, len(b.monthly))
	for _, entry := range b.monthly {
		out = append(out, entry)
	}
	sortMonthlyEntries(out)
	return out, nil
}

// Reset clears all stored data (for testing).
func (b *MemoryBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = make(map[string]model.Transaction)
	b.segments = make(map[model.Source][]interval.Interval)
	b.monthly = make(map[MonthKey]MonthlyEntry)
}

// Seed adds transactions directly, bypassing segment bookkeeping (for testing).
func (b *MemoryBackend) Seed(source model.Source, txs ...model.Transaction) {
	// Errors impossible for the memory backend
	_ = b.UpsertTransactions(source, txs)
}

func sortTransactions(txs []model.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}

func sortMonthlyEntries(entries []MonthlyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if a.Source != c.Source {
			return a.Source < c.Source
		}
		if a.Year != c.Year {
			return a.Year < c.Year
		}
		return a.Month < c.Month
	})
}

func sortMonthKeys(keys []MonthKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.Source != c.Source {
			return a.Source < c.Source
		}
		if a.Year != c.Year {
			return a.Year < c.Year
		}
		return a.Month < c.Month
	})
}
