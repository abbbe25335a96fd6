// Package cache implements the caching and query-optimization core of
// fincache.
//
// # Overview
//
//   - Transaction rows are persisted per (source, year, month); they are the
//     source of truth.
//   - Cache segments record which (source, date-range) intervals have been
//     fully fetched; the planner treats the merged union of segments as the
//     cached coverage for a source.
//   - The monthly cache index is a second, month-granular coverage index.
//     Segments and the monthly index are maintained independently and can
//     drift from the rows and from each other; admin operations detect and
//     repair that drift rather than the write path preventing it.
//
// # Write ordering
//
// StoreTransactions writes rows before recording the covering segment. A
// crash between the two leaves rows without coverage, which simply looks
// like a cache miss on the next query. The reverse order could leave a
// segment claiming data that was never written, which is corruption, so it
// is never used.
//
// # Refresh guard
//
// Any path that would call the external provider runs under the refresh
// coordinator, which enforces at-most-one in-flight refresh plus session
// and cooldown limits. After acquiring the gate the plan is recomputed, so
// a caller queued behind a refresh of the same range finds the range
// covered and fetches nothing.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
	"github.com/finboard/fincache/internal/provider"
	"github.com/finboard/fincache/internal/refresh"
	"github.com/finboard/fincache/internal/store"
)

// Manager orchestrates the transaction store, segment coverage, monthly
// index, provider, and refresh coordinator.
//
// writeMu serializes every read-modify-write of rows, segments, and the
// monthly index: the backends' upsert and save paths are load-merge-store
// sequences, so two concurrent writers would lose one side's update.
// Fetches run in parallel; stores take the lock and land one at a time.
type Manager struct {
	backend store.Backend
	prov    provider.Provider
	coord   *refresh.Coordinator
	workers int
	writeMu sync.Mutex
	log     *logrus.Entry
}

// NewManager creates a cache manager. A nil backend selects the default
// filesystem backend; a nil coordinator gets default bounds. The provider
// may be nil for cache-only use (any operation needing a fetch then fails).
func NewManager(backend store.Backend, prov provider.Provider, coord *refresh.Coordinator, log *logrus.Entry) *Manager {
	if backend == nil {
		backend = store.NewFilesystemBackend("")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if coord == nil {
		coord = refresh.New(refresh.Config{
			MaxPerSession: core.DefaultMaxRefreshesPerSession,
			MinInterval:   core.DefaultMinRefreshInterval * time.Millisecond,
		}, log)
	}
	return &Manager{
		backend: backend,
		prov:    prov,
		coord:   coord,
		workers: core.DefaultFetchWorkers,
		log:     log.WithField("component", "cache"),
	}
}

// SetWorkers bounds the parallel missing-range fetches (minimum 1).
func (m *Manager) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	m.workers = n
}

// Coordinator exposes the refresh coordinator (admin surface, stats).
func (m *Manager) Coordinator() *refresh.Coordinator {
	return m.coord
}

// Coverage returns the merged, disjoint cached intervals for a source.
func (m *Manager) Coverage(source model.Source) ([]interval.Interval, error) {
	set, err := m.backend.LoadSegments(source)
	if err != nil {
		return nil, err
	}
	return set.Intervals(), nil
}

// RecordSegment registers [start, end] as fully cached for source.
// Overlapping or duplicate ranges coalesce, so re-recording a range leaves
// coverage unchanged.
func (m *Manager) RecordSegment(source model.Source, start, end time.Time) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.recordSegment(source, start, end)
}

func (m *Manager) recordSegment(source model.Source, start, end time.Time) error {
	iv, err := interval.New(start, end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	set, err := m.backend.LoadSegments(source)
	if err != nil {
		return err
	}
	set.Add(iv)
	return m.backend.SaveSegments(source, set)
}

// ClearSegments removes coverage for source. With a range, only the
// intersecting portion is removed, splitting segments when the cleared
// range is a strict sub-range; without one, all coverage goes.
func (m *Manager) ClearSegments(source model.Source, rng *interval.Interval) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.clearSegments(source, rng)
}

func (m *Manager) clearSegments(source model.Source, rng *interval.Interval) error {
	if rng == nil {
		return m.backend.SaveSegments(source, interval.NewSet())
	}
	set, err := m.backend.LoadSegments(source)
	if err != nil {
		return err
	}
	set.Remove(*rng)
	return m.backend.SaveSegments(source, set)
}

// StoreTransactions persists fetched rows and then records the covered
// segment, in that order (see package doc), then refreshes the monthly
// index for the touched months. The row write and segment record are one
// logical unit; a partial failure leaves a detectable, not silent,
// inconsistency (verify/repair find it). The whole sequence runs under
// writeMu, so parallel gap fetches land their results one at a time.
func (m *Manager) StoreTransactions(source model.Source, txs []model.Transaction, covered interval.Interval) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.backend.UpsertTransactions(source, txs); err != nil {
		return fmt.Errorf("storing transactions for %s: %w", source, err)
	}
	if err := m.recordSegment(source, covered.Start, covered.End); err != nil {
		return fmt.Errorf("recording segment for %s: %w", source, err)
	}

	// Best-effort index maintenance; drift here is caught by diagnose/sync.
	for _, ym := range core.MonthsInRange(covered.Start, covered.End) {
		if _, err := m.syncMonth(source, ym[0], ym[1]); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"source": source, "year": ym[0], "month": ym[1],
			}).Warn("monthly index update failed")
		}
	}

	m.log.WithFields(logrus.Fields{
		"source": source,
		"rows":   len(txs),
		"range":  covered.String(),
	}).Debug("stored transactions")
	return nil
}

// ReadTransactions returns rows in [start, end] regardless of segment
// bookkeeping. Pure read, used by callers and integrity checks alike.
func (m *Manager) ReadTransactions(source model.Source, start, end time.Time) ([]model.Transaction, error) {
	if _, err := interval.New(start, end); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return m.backend.ReadTransactions(source, start, end)
}

// GetTransactions is the composite operation most callers use: plan the
// query, fetch whatever is missing through the refresh coordinator, store
// it, and return the merged rows for the full range.
//
// With forceRefresh the whole range is refetched regardless of coverage.
// mode selects reject-or-queue behavior when a refresh is already in
// flight (refresh.ModeReject / refresh.ModeQueue).
func (m *Manager) GetTransactions(ctx context.Context, source model.Source, start, end time.Time, forceRefresh bool, mode refresh.Mode) ([]model.Transaction, PlanResult, error) {
	plan, err := m.PlanQuery(source, start, end)
	if err != nil {
		return nil, PlanResult{}, err
	}

	if plan.Status == VerdictFullHit && !forceRefresh {
		txs, err := m.backend.ReadTransactions(source, plan.Requested.Start, plan.Requested.End)
		return txs, plan, err
	}

	if m.prov == nil {
		return nil, plan, fmt.Errorf("no provider configured, cannot fetch %s for %s", plan.Requested.String(), source)
	}

	err = m.coord.Do(ctx, forceRefresh, mode, func(ctx context.Context) error {
		// Recompute under the gate: a refresh that just finished may have
		// covered (part of) this range already.
		var missing []interval.Interval
		if forceRefresh {
			missing = []interval.Interval{plan.Requested}
		} else {
			current, err := m.PlanQuery(source, start, end)
			if err != nil {
				return err
			}
			missing = current.MissingRanges
		}
		if len(missing) == 0 {
			return nil
		}
		return m.fetchAndStore(ctx, source, missing)
	})
	if err != nil {
		return nil, plan, err
	}

	txs, err := m.backend.ReadTransactions(source, plan.Requested.Start, plan.Requested.End)
	return txs, plan, err
}

// fetchAndStore pulls each missing range from the provider and persists it.
// Ranges fetch in parallel under a bounded worker pool; the first failure
// wins and no rows from failed fetches are stored.
func (m *Manager) fetchAndStore(ctx context.Context, source model.Source, missing []interval.Interval) error {
	if len(missing) == 1 {
		return m.fetchRange(ctx, source, missing[0])
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		semaphore = make(chan struct{}, m.workers)
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, rng := range missing {
		wg.Add(1)
		go func(rng interval.Interval) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := m.fetchRange(ctx, source, rng); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(rng)
	}

	wg.Wait()
	return firstErr
}

func (m *Manager) fetchRange(ctx context.Context, source model.Source, rng interval.Interval) error {
	m.log.WithFields(logrus.Fields{
		"source": source,
		"range":  rng.String(),
	}).Debug("fetching from provider")

	txs, err := m.prov.FetchTransactions(ctx, source, rng.Start, rng.End)
	if err != nil {
		return err
	}
	// An empty result still covers the range: no transactions occurred.
	return m.StoreTransactions(source, txs, rng)
}
