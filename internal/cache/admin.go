package cache

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
	"github.com/finboard/fincache/internal/refresh"
	"github.com/finboard/fincache/internal/store"
)

// IntegrityReport is the result of VerifyCacheIntegrity. IsConsistent is a
// heuristic that flags drift for follow-up; it does not prove correctness.
type IntegrityReport struct {
	Source           model.Source      `json:"source"`
	Range            interval.Interval `json:"range"`
	SegmentCount     int               `json:"segment_count"`
	CoveredDays      int               `json:"covered_days"`
	TransactionCount int               `json:"transaction_count"`
	IsConsistent     bool              `json:"is_consistent"`
	Notes            []string          `json:"notes,omitempty"`
}

// VerifyCacheIntegrity compares segment coverage against actual transaction
// rows in [start, end]. Consistent when both are empty or both are
// populated; a segment claiming days with zero rows behind it, or rows with
// no coverage at all, flags inconsistency. Drift is reported as data, not
// an error: it is an expected transient condition.
func (m *Manager) VerifyCacheIntegrity(source model.Source, start, end time.Time) (IntegrityReport, error) {
	req, err := interval.New(start, end)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	coverage, err := m.backend.LoadSegments(source)
	if err != nil {
		return IntegrityReport{}, err
	}
	covered := coverage.Intersect(req)
	coveredDays := 0
	for _, iv := range covered {
		coveredDays += iv.Days()
	}

	txCount, err := m.backend.CountTransactions(source, req.Start, req.End)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{
		Source:           source,
		Range:            req,
		SegmentCount:     len(covered),
		CoveredDays:      coveredDays,
		TransactionCount: txCount,
		Notes:            make([]string, 0),
	}

	switch {
	case coveredDays == 0 && txCount == 0:
		report.IsConsistent = true
	case coveredDays > 0 && txCount == 0:
		report.Notes = append(report.Notes, "segments claim coverage but no transaction rows exist in range")
	case coveredDays == 0 && txCount > 0:
		report.Notes = append(report.Notes, "transaction rows exist in range but no segment claims coverage")
	default:
		report.IsConsistent = true
	}

	if !report.IsConsistent {
		m.log.WithFields(logrus.Fields{
			"source":       source,
			"range":        req.String(),
			"covered_days": coveredDays,
			"rows":         txCount,
		}).Warn("cache integrity drift detected")
	}
	return report, nil
}

// RepairCacheSegments rewrites segment coverage for [start, end] from the
// transaction rows actually present, trusting the rows as ground truth.
// Days with rows become coverage (consecutive days merge into one
// segment); claimed days without rows are dropped.
func (m *Manager) RepairCacheSegments(source model.Source, start, end time.Time) error {
	req, err := interval.New(start, end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	txs, err := m.backend.ReadTransactions(source, req.Start, req.End)
	if err != nil {
		return err
	}

	derived := interval.NewSet()
	for _, tx := range txs {
		derived.Add(interval.MustNew(tx.Date, tx.Date))
	}

	coverage, err := m.backend.LoadSegments(source)
	if err != nil {
		return err
	}
	coverage.Remove(req)
	for _, iv := range derived.Intervals() {
		coverage.Add(iv)
	}

	if err := m.backend.SaveSegments(source, coverage); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"source":   source,
		"range":    req.String(),
		"segments": derived.Len(),
	}).Info("cache segments repaired from transaction rows")
	return nil
}

// MissingEntry is one monthly index gap found by DiagnoseMissingEntries.
type MissingEntry struct {
	Source           model.Source `json:"source"`
	Year             int          `json:"year"`
	Month            int          `json:"month"`
	TransactionCount int          `json:"transaction_count"`
	IndexedCount     *int         `json:"indexed_count,omitempty"` // nil when no entry exists
}

// DiagnoseReport is the result of DiagnoseMissingEntries.
type DiagnoseReport struct {
	MissingEntries []MissingEntry `json:"missing_entries"`
	TotalMissing   int            `json:"total_missing"`
	Errors         []string       `json:"errors,omitempty"`
}

// DiagnoseMissingEntries compares transaction rows against the monthly
// index and lists every (source, year, month) that has rows but no index
// entry, or an entry with a stale count. Strictly read-only: it never
// mutates state and never calls the provider. Repairing what it finds is a
// separate, opt-in SyncAllMissingEntries call.
func (m *Manager) DiagnoseMissingEntries() (DiagnoseReport, error) {
	report := DiagnoseReport{
		MissingEntries: make([]MissingEntry, 0),
		Errors:         make([]string, 0),
	}

	keys, err := m.backend.DistinctMonths()
	if err != nil {
		return report, fmt.Errorf("scanning transaction months: %w", err)
	}

	for _, key := range keys {
		count, err := m.backend.CountMonth(key.Source, key.Year, key.Month)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %04d-%02d: %v", key.Source, key.Year, key.Month, err))
			continue
		}
		if count == 0 {
			continue
		}

		entry, err := m.backend.GetMonthlyEntry(key.Source, key.Year, key.Month)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %04d-%02d: %v", key.Source, key.Year, key.Month, err))
			continue
		}
		if entry != nil && entry.TransactionCount == count {
			continue
		}

		missing := MissingEntry{
			Source:           key.Source,
			Year:             key.Year,
			Month:            key.Month,
			TransactionCount: count,
		}
		if entry != nil {
			indexed := entry.TransactionCount
			missing.IndexedCount = &indexed
		}
		report.MissingEntries = append(report.MissingEntries, missing)
	}

	report.TotalMissing = len(report.MissingEntries)
	return report, nil
}

// ClearCache deletes transaction rows and segment coverage for the given
// sources, scoped to rng when non-nil. The monthly cache index is
// deliberately left untouched: clearing must make index drift visible, not
// silently heal it. Returns the number of rows deleted.
func (m *Manager) ClearCache(sources []model.Source, rng *interval.Interval) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	deleted := 0
	for _, source := range sources {
		var (
			n   int
			err error
		)
		if rng == nil {
			n, err = m.backend.DeleteAllTransactions(source)
		} else {
			n, err = m.backend.DeleteTransactions(source, rng.Start, rng.End)
		}
		if err != nil {
			return deleted, fmt.Errorf("clearing transactions for %s: %w", source, err)
		}
		deleted += n

		if err := m.clearSegments(source, rng); err != nil {
			return deleted, fmt.Errorf("clearing segments for %s: %w", source, err)
		}

		m.log.WithFields(logrus.Fields{
			"source": source,
			"rows":   n,
		}).Info("cache cleared")
	}
	return deleted, nil
}

// SourceStats aggregates per-source counts for display.
type SourceStats struct {
	Source           model.Source         `json:"source"`
	TransactionCount int                  `json:"transaction_count"`
	SegmentCount     int                  `json:"segment_count"`
	CoveredDays      int                  `json:"covered_days"`
	IndexedMonths    int                  `json:"indexed_months"`
	MonthlyEntries   []store.MonthlyEntry `json:"monthly_entries,omitempty"`
}

// Stats is the read-only reporting surface for the admin CLI.
type Stats struct {
	Sources     []SourceStats    `json:"sources"`
	Coordinator refresh.Snapshot `json:"coordinator"`
}

// DetailedStats composes per-source row, segment, and index counts plus
// coordinator state. Read-only.
func (m *Manager) DetailedStats() (Stats, error) {
	stats := Stats{
		Sources:     make([]SourceStats, 0, len(model.Sources)),
		Coordinator: m.coord.Snapshot(),
	}

	entries, err := m.backend.ListMonthlyEntries()
	if err != nil {
		return stats, err
	}

	for _, source := range model.Sources {
		coverage, err := m.backend.LoadSegments(source)
		if err != nil {
			return stats, err
		}

		txCount := 0
		keys, err := m.backend.DistinctMonths()
		if err != nil {
			return stats, err
		}
		for _, key := range keys {
			if key.Source != source {
				continue
			}
			n, err := m.backend.CountMonth(key.Source, key.Year, key.Month)
			if err != nil {
				return stats, err
			}
			txCount += n
		}

		srcStats := SourceStats{
			Source:           source,
			TransactionCount: txCount,
			SegmentCount:     coverage.Len(),
			CoveredDays:      coverage.TotalDays(),
		}
		for _, entry := range entries {
			if entry.Source == source {
				srcStats.IndexedMonths++
				srcStats.MonthlyEntries = append(srcStats.MonthlyEntries, entry)
			}
		}
		stats.Sources = append(stats.Sources, srcStats)
	}
	return stats, nil
}
