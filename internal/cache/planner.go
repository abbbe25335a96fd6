package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
)

// ErrInvalidRange reports a malformed query range (end before start).
// Input error: surfaced immediately, never retried, provider never touched.
var ErrInvalidRange = errors.New("invalid date range")

// Verdict classifies how much of a requested range the cache can serve.
type Verdict string

const (
	VerdictFullHit    Verdict = "full_hit"
	VerdictPartialHit Verdict = "partial_hit"
	VerdictMiss       Verdict = "miss"
)

// PlanResult is the planner's answer for one (source, range) query.
// MissingRanges is the minimal set of disjoint sub-ranges that need a
// provider fetch; CachedRanges is the covered remainder.
type PlanResult struct {
	Source        model.Source        `json:"source"`
	Requested     interval.Interval   `json:"requested"`
	Status        Verdict             `json:"status"`
	CachedRanges  []interval.Interval `json:"cached_ranges"`
	MissingRanges []interval.Interval `json:"missing_ranges"`
}

// planFromCoverage computes the verdict for req against a coverage set.
// Pure decision function: no I/O, no clock.
func planFromCoverage(source model.Source, coverage *interval.Set, req interval.Interval) PlanResult {
	cached := coverage.Intersect(req)
	missing := coverage.Subtract(req)

	status := VerdictPartialHit
	switch {
	case len(missing) == 0:
		status = VerdictFullHit
	case len(cached) == 0:
		status = VerdictMiss
	}

	return PlanResult{
		Source:        source,
		Requested:     req,
		Status:        status,
		CachedRanges:  cached,
		MissingRanges: missing,
	}
}

// PlanQuery reports whether [start, end] for source is fully cached,
// partially cached, or a full miss, with the minimal missing sub-ranges.
// A range entirely outside coverage is a miss, not an error. A single-day
// range (start == end) is valid; end before start is ErrInvalidRange.
func (m *Manager) PlanQuery(source model.Source, start, end time.Time) (PlanResult, error) {
	req, err := interval.New(start, end)
	if err != nil {
		return PlanResult{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	coverage, err := m.backend.LoadSegments(source)
	if err != nil {
		return PlanResult{}, fmt.Errorf("loading segments for %s: %w", source, err)
	}

	return planFromCoverage(source, coverage, req), nil
}
