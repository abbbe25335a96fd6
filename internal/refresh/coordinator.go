// Package refresh guards operations that talk to external providers.
//
// The Coordinator is a mutual-exclusion and rate-limit gate around an
// arbitrary operation: at most one refresh runs at a time, refreshes are
// capped per session, and a cooldown separates consecutive starts. It knows
// nothing about sources or date ranges.
//
// A Coordinator instance is process-wide when wired as one shared instance,
// but it is an ordinary constructible value so tests create fresh ones. Its
// state lives in memory only: running multiple processes against the same
// cache needs an external lock, which this package does not provide.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrThrottled reports a refresh rejected by the session cap or cooldown.
// Distinguishable from provider failures so callers can skip silently.
var ErrThrottled = errors.New("refresh throttled")

// ErrRefreshInProgress reports a non-queued refresh attempted while another
// refresh is in flight.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Mode selects how a caller behaves when a refresh is already in flight.
type Mode int

const (
	// ModeReject fails immediately with ErrRefreshInProgress.
	ModeReject Mode = iota
	// ModeQueue waits for the in-flight refresh to finish, then runs.
	ModeQueue
)

// Config bounds refresh frequency.
type Config struct {
	MaxPerSession int           // max refresh attempts per session
	MinInterval   time.Duration // cooldown between refresh starts
}

// Snapshot is a point-in-time copy of coordinator state, for diagnostics.
type Snapshot struct {
	Refreshing        bool      `json:"refreshing"`
	RefreshCount      int       `json:"refresh_count"`
	LastRefreshTime   time.Time `json:"last_refresh_time"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	MaxPerSession     int       `json:"max_per_session"`
	MinIntervalMs     int64     `json:"min_interval_ms"`
}

// Coordinator serializes refresh operations.
type Coordinator struct {
	mu                sync.Mutex
	cfg               Config
	refreshing        bool
	refreshCount      int
	lastRefresh       time.Time
	consecutiveErrors int
	inflight          chan struct{} // closed when the current refresh ends

	now func() time.Time
	log *logrus.Entry
}

// New creates a Coordinator. Zero config fields fall back to sane bounds.
func New(cfg Config, log *logrus.Entry) *Coordinator {
	if cfg.MaxPerSession <= 0 {
		cfg.MaxPerSession = 10
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		cfg: cfg,
		now: time.Now,
		log: log.WithField("component", "refresh"),
	}
}

// WithClock replaces the time source (for testing).
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// CanRefresh reports whether a refresh would be allowed right now, without
// changing any state. The reason is empty when allowed.
func (c *Coordinator) CanRefresh(force bool) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRefreshLocked(force)
}

func (c *Coordinator) canRefreshLocked(force bool) (bool, string) {
	if c.refreshing {
		return false, "refresh already in progress"
	}
	if force {
		return true, ""
	}
	if c.refreshCount >= c.cfg.MaxPerSession {
		return false, fmt.Sprintf("session refresh limit reached (%d)", c.cfg.MaxPerSession)
	}
	if c.cfg.MinInterval > 0 && !c.lastRefresh.IsZero() {
		elapsed := c.now().Sub(c.lastRefresh)
		if elapsed < c.cfg.MinInterval {
			return false, fmt.Sprintf("cooldown active, retry in %v", c.cfg.MinInterval-elapsed)
		}
	}
	return true, ""
}

// acquire claims the refresh slot, waiting in queue mode.
func (c *Coordinator) acquire(ctx context.Context, force bool, mode Mode) error {
	for {
		c.mu.Lock()
		if !c.refreshing {
			if ok, reason := c.canRefreshLocked(force); !ok {
				c.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrThrottled, reason)
			}
			c.refreshing = true
			c.refreshCount++
			c.lastRefresh = c.now()
			c.inflight = make(chan struct{})
			c.mu.Unlock()
			return nil
		}

		if mode == ModeReject {
			c.mu.Unlock()
			return ErrRefreshInProgress
		}

		// Queue mode: wait for the in-flight refresh, then retry.
		wait := c.inflight
		c.mu.Unlock()
		c.log.Debug("refresh in flight, queued")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// release ends the refresh and records the outcome.
func (c *Coordinator) release(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshing = false
	if err != nil {
		c.consecutiveErrors++
		c.log.WithError(err).WithField("consecutive_errors", c.consecutiveErrors).Warn("refresh failed")
	} else {
		c.consecutiveErrors = 0
	}
	if c.inflight != nil {
		close(c.inflight)
		c.inflight = nil
	}
}

// Do runs fn under the gate. The slot is released whatever fn does,
// including panicking: release is deferred, so a caller recovering from a
// panic inside fn does not leave the coordinator wedged in the refreshing
// state. Reset remains the escape hatch for genuine process-level trouble.
func (c *Coordinator) Do(ctx context.Context, force bool, mode Mode, fn func(context.Context) error) (err error) {
	if acqErr := c.acquire(ctx, force, mode); acqErr != nil {
		return acqErr
	}
	defer func() {
		if r := recover(); r != nil {
			c.release(fmt.Errorf("refresh panicked: %v", r))
			panic(r)
		}
		c.release(err)
	}()

	c.log.WithFields(logrus.Fields{
		"force":   force,
		"attempt": c.RefreshCount(),
	}).Debug("refresh started")

	err = fn(ctx)
	return err
}

// Reset forces the coordinator back to idle and zeroes all counters.
// Operator escape hatch for a breaker suspected stuck.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		close(c.inflight)
		c.inflight = nil
	}
	c.refreshing = false
	c.refreshCount = 0
	c.lastRefresh = time.Time{}
	c.consecutiveErrors = 0
	c.log.Info("coordinator reset")
}

// RefreshCount returns the number of refresh attempts this session.
func (c *Coordinator) RefreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshCount
}

// ConsecutiveErrors returns the current consecutive failure count.
func (c *Coordinator) ConsecutiveErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors
}

// Snapshot returns a copy of the current state for diagnostics.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Refreshing:        c.refreshing,
		RefreshCount:      c.refreshCount,
		LastRefreshTime:   c.lastRefresh,
		ConsecutiveErrors: c.consecutiveErrors,
		MaxPerSession:     c.cfg.MaxPerSession,
		MinIntervalMs:     c.cfg.MinInterval.Milliseconds(),
	}
}
