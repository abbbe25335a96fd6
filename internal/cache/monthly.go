package cache

import (
	"fmt"
	"time"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
	"github.com/finboard/fincache/internal/store"
)

// SyncMonth recomputes the monthly index entry for one (source, year,
// month) from the transaction rows. Returns false when the month has zero
// rows: no entry is created, so the index never asserts coverage that does
// not exist.
func (m *Manager) SyncMonth(source model.Source, year, month int) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.syncMonth(source, year, month)
}

func (m *Manager) syncMonth(source model.Source, year, month int) (bool, error) {
	count, err := m.backend.CountMonth(source, year, month)
	if err != nil {
		return false, fmt.Errorf("counting %s %04d-%02d: %w", source, year, month, err)
	}
	if count == 0 {
		return false, nil
	}

	status := store.StatusPartial
	coverage, err := m.backend.LoadSegments(source)
	if err != nil {
		return false, err
	}
	first, last := core.MonthRange(year, month)
	if coverage.Contains(interval.MustNew(first, last)) {
		status = store.StatusComplete
	}

	entry := store.MonthlyEntry{
		Source:           source,
		Year:             year,
		Month:            month,
		TransactionCount: count,
		Status:           status,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := m.backend.UpsertMonthlyEntry(entry); err != nil {
		return false, fmt.Errorf("upserting index entry for %s %04d-%02d: %w", source, year, month, err)
	}
	return true, nil
}

// SyncReport summarizes a SyncAllMissingEntries run.
type SyncReport struct {
	Synced int      `json:"synced"`
	Errors []string `json:"errors,omitempty"`
}

// SyncAllMissingEntries scans the transaction rows for every distinct
// (source, year, month) and recomputes the index entry for each one that is
// absent or carries a stale count. Pure local reconciliation: idempotent,
// never calls the provider.
func (m *Manager) SyncAllMissingEntries() (SyncReport, error) {
	report := SyncReport{Errors: make([]string, 0)}

	keys, err := m.backend.DistinctMonths()
	if err != nil {
		return report, fmt.Errorf("scanning transaction months: %w", err)
	}

	for _, key := range keys {
		entry, err := m.backend.GetMonthlyEntry(key.Source, key.Year, key.Month)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %04d-%02d: %v", key.Source, key.Year, key.Month, err))
			continue
		}

		count, err := m.backend.CountMonth(key.Source, key.Year, key.Month)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %04d-%02d: %v", key.Source, key.Year, key.Month, err))
			continue
		}

		if entry != nil && entry.TransactionCount == count {
			continue
		}

		if _, err := m.SyncMonth(key.Source, key.Year, key.Month); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %04d-%02d: %v", key.Source, key.Year, key.Month, err))
			continue
		}
		report.Synced++
	}

	m.log.WithField("synced", report.Synced).Debug("monthly index sync complete")
	return report, nil
}
