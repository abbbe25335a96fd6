package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
)

// FilesystemBackend stores JSON files on disk under the cache root.
// Transaction rows are partitioned into one file per (source, year, month),
// matching the denormalized year/month tagging on the rows themselves.
type FilesystemBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemBackend creates a filesystem-based backend rooted at root.
// An empty root selects the default cache directory.
func NewFilesystemBackend(root string) *FilesystemBackend {
	if root == "" {
		root = core.CacheRoot()
	}
	return &FilesystemBackend{root: root}
}

// MonthPath returns the transactions file path for one (source, year, month).
func (b *FilesystemBackend) MonthPath(source model.Source, year, month int) string {
	return filepath.Join(
		b.root,
		"transactions",
		string(source),
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d.json", month),
	)
}

// SegmentsPath returns the segments file path for a source.
func (b *FilesystemBackend) SegmentsPath(source model.Source) string {
	return filepath.Join(b.root, "segments", string(source)+".json")
}

// MonthlyIndexPath returns the monthly index file path for a source.
func (b *FilesystemBackend) MonthlyIndexPath(source model.Source) string {
	return filepath.Join(b.root, "monthly", string(source)+".json")
}

// readJSON loads path into v. Missing files yield ok=false. Corrupt files
// are removed and treated as missing, matching a cache's recoverability
// contract: the worst case is a refetch, never a wedged store.
func (b *FilesystemBackend) readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		os.Remove(path)
		return false, nil
	}
	return true, nil
}

// writeJSON persists v to path atomically using temp file + rename.
func (b *FilesystemBackend) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (b *FilesystemBackend) readMonth(source model.Source, year, month int) ([]model.Transaction, error) {
	var txs []model.Transaction
	if _, err := b.readJSON(b.MonthPath(source, year, month), &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// UpsertTransactions writes rows idempotently, keyed by (source, id).
// Rows are grouped per month file; within each file existing rows with the
// same id are replaced.
func (b *FilesystemBackend) UpsertTransactions(source model.Source, txs []model.Transaction) error {
	byMonth := make(map[MonthKey][]model.Transaction)
	for _, tx := range txs {
		tx.Source = source
		tx = tx.Normalize()
		key := MonthKey{Source: source, Year: tx.Year, Month: tx.Month}
		byMonth[key] = append(byMonth[key], tx)
	}

	for key, incoming := range byMonth {
		existing, err := b.readMonth(source, key.Year, key.Month)
		if err != nil {
			return err
		}

		merged := make(map[string]model.Transaction, len(existing)+len(incoming))
		for _, tx := range existing {
			merged[tx.Key()] = tx
		}
		for _, tx := range incoming {
			merged[tx.Key()] = tx
		}

		rows := make([]model.Transaction, 0, len(merged))
		for _, tx := range merged {
			rows = append(rows, tx)
		}
		sortTransactions(rows)

		if err := b.writeJSON(b.MonthPath(source, key.Year, key.Month), rows); err != nil {
			return err
		}
	}
	return nil
}

// ReadTransactions returns rows in [start, end], sorted by date then id.
func (b *FilesystemBackend) ReadTransactions(source model.Source, start, end time.Time) ([]model.Transaction, error) {
	s := core.DateOnly(start)
	e := core.DateOnly(end)

	out := make([]model.Transaction, 0)
	for _, ym := range core.MonthsInRange(s, e) {
		rows, err := b.readMonth(source, ym[0], ym[1])
		if err != nil {
			return nil, err
		}
		for _, tx := range rows {
			if tx.Date.Before(s) || tx.Date.After(e) {
				continue
			}
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

// CountTransactions counts rows in [start, end].
func (b *FilesystemBackend) CountTransactions(source model.Source, start, end time.Time) (int, error) {
	txs, err := b.ReadTransactions(source, start, end)
	if err != nil {
		return 0, err
	}
	return len(txs), nil
}

// CountMonth counts rows for one (source, year, month).
func (b *FilesystemBackend) CountMonth(source model.Source, year, month int) (int, error) {
	rows, err := b.readMonth(source, year, month)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// DeleteTransactions removes rows in [start, end].
func (b *FilesystemBackend) DeleteTransactions(source model.Source, start, end time.Time) (int, error) {
	s := core.DateOnly(start)
	e := core.DateOnly(end)

	deleted := 0
	for _, ym := range core.MonthsInRange(s, e) {
		rows, err := b.readMonth(source, ym[0], ym[1])
		if err != nil {
			return deleted, err
		}
		if len(rows) == 0 {
			continue
		}

		kept := make([]model.Transaction, 0, len(rows))
		for _, tx := range rows {
			if tx.Date.Before(s) || tx.Date.After(e) {
				kept = append(kept, tx)
			} else {
				deleted++
			}
		}
		if len(kept) == len(rows) {
			continue
		}

		path := b.MonthPath(source, ym[0], ym[1])
		if len(kept) == 0 {
			b.writeLock.Lock()
			err = os.Remove(path)
			b.writeLock.Unlock()
			if err != nil && !os.IsNotExist(err) {
				return deleted, err
			}
			continue
		}
		if err := b.writeJSON(path, kept); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// DeleteAllTransactions removes every row for the source.
func (b *FilesystemBackend) DeleteAllTransactions(source model.Source) (int, error) {
	keys, err := b.distinctMonthsFor(source)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		n, err := b.CountMonth(source, key.Year, key.Month)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	b.writeLock.Lock()
	defer b.writeLock.Unlock()
	dir := filepath.Join(b.root, "transactions", string(source))
	if err := os.RemoveAll(dir); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// distinctMonthsFor walks one source's transaction directory tree.
func (b *FilesystemBackend) distinctMonthsFor(source model.Source) ([]MonthKey, error) {
	dir := filepath.Join(b.root, "transactions", string(source))
	yearDirs, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]MonthKey, 0)
	for _, yearDir := range yearDirs {
		if !yearDir.IsDir() || len(yearDir.Name()) != 4 {
			continue
		}
		year, err := strconv.Atoi(yearDir.Name())
		if err != nil {
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, yearDir.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			name := file.Name()
			if filepath.Ext(name) != ".json" || len(name) != 7 {
				continue
			}
			month, err := strconv.Atoi(name[:2])
			if err != nil || month < 1 || month > 12 {
				continue
			}
			out = append(out, MonthKey{Source: source, Year: year, Month: month})
		}
	}
	return out, nil
}

// DistinctMonths lists every (source, year, month) with at least one row.
func (b *FilesystemBackend) DistinctMonths() ([]MonthKey, error) {
	out := make([]MonthKey, 0)
	for _, source := range model.Sources {
		keys, err := b.distinctMonthsFor(source)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			n, err := b.CountMonth(source, key.Year, key.Month)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				out = append(out, key)
			}
		}
	}
	sortMonthKeys(out)
	return out, nil
}

// LoadSegments returns the coverage set for the source.
func (b *FilesystemBackend) LoadSegments(source model.Source) (*interval.Set, error) {
	var ivs []interval.Interval
	if _, err := b.readJSON(b.SegmentsPath(source), &ivs); err != nil {
		return nil, err
	}
	return interval.NewSet(ivs...), nil
}

// SaveSegments replaces the stored coverage for the source.
func (b *FilesystemBackend) SaveSegments(source model.Source, set *interval.Set) error {
	return b.writeJSON(b.SegmentsPath(source), set.Intervals())
}

func (b *FilesystemBackend) readMonthlyIndex(source model.Source) ([]MonthlyEntry, error) {
	var entries []MonthlyEntry
	if _, err := b.readJSON(b.MonthlyIndexPath(source), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetMonthlyEntry returns the entry or nil when absent.
func (b *FilesystemBackend) GetMonthlyEntry(source model.Source, year, month int) (*MonthlyEntry, error) {
	entries, err := b.readMonthlyIndex(source)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Year == year && entries[i].Month == month {
			entry := entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// UpsertMonthlyEntry creates or replaces the entry for its key.
func (b *FilesystemBackend) UpsertMonthlyEntry(entry MonthlyEntry) error {
	entries, err := b.readMonthlyIndex(entry.Source)
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].Year == entry.Year && entries[i].Month == entry.Month {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	return b.writeJSON(b.MonthlyIndexPath(entry.Source), entries)
}

// ListMonthlyEntries returns all entries across sources in stable order.
func (b *FilesystemBackend) ListMonthlyEntries() ([]MonthlyEntry, error) {
	out := make([]MonthlyEntry, 0)
	for _, source := range model.Sources {
		entries, err := b.readMonthlyIndex(source)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	sortMonthlyEntries(out)
	return out, nil
}
