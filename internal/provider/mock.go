package provider

import (
	"context"
	"sync"
	"time"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/model"
)

// RequestLogEntry records a fetch made against the fake provider.
type RequestLogEntry struct {
	Source model.Source
	Start  time.Time
	End    time.Time
}

// InMemoryProvider is a deterministic Provider fake for unit tests.
// Seed it with transactions; fetches return the seeded rows falling inside
// the requested source and range, and every call is recorded for
// assertions.
type InMemoryProvider struct {
	mu         sync.Mutex
	txs        []model.Transaction
	err        error
	delay      time.Duration
	RequestLog []RequestLogEntry
}

// NewInMemoryProvider creates an empty fake provider.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		txs:        make([]model.Transaction, 0),
		RequestLog: make([]RequestLogEntry, 0),
	}
}

// Seed adds transactions to the fake's dataset.
func (p *InMemoryProvider) Seed(txs ...model.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		p.txs = append(p.txs, tx.Normalize())
	}
}

// FailWith makes subsequent fetches return err (nil restores success).
func (p *InMemoryProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetDelay makes each fetch take d, to widen race windows in tests.
func (p *InMemoryProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// RequestsMade returns the number of fetches performed.
func (p *InMemoryProvider) RequestsMade() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RequestLog)
}

// Reset clears seeded rows and the request log.
func (p *InMemoryProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = make([]model.Transaction, 0)
	p.RequestLog = make([]RequestLogEntry, 0)
	p.err = nil
	p.delay = 0
}

// FetchTransactions returns seeded rows for the source within [start, end].
func (p *InMemoryProvider) FetchTransactions(ctx context.Context, source model.Source, start, end time.Time) ([]model.Transaction, error) {
	p.mu.Lock()
	p.RequestLog = append(p.RequestLog, RequestLogEntry{Source: source, Start: start, End: end})
	err := p.err
	delay := p.delay
	subset := make([]model.Transaction, 0)
	s := core.DateOnly(start)
	e := core.DateOnly(end)
	for _, tx := range p.txs {
		if tx.Source != source {
			continue
		}
		if tx.Date.Before(s) || tx.Date.After(e) {
			continue
		}
		subset = append(subset, tx)
	}
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return nil, err
	}
	return subset, nil
}
