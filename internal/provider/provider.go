// Package provider is the boundary to the external transaction systems.
// fincache only sees the normalized Transaction shape; provider-specific
// auth, rate limits, and payload details stay behind this interface.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/finboard/fincache/internal/model"
)

// Provider fetches transactions for one source over an inclusive date range.
type Provider interface {
	FetchTransactions(ctx context.Context, source model.Source, start, end time.Time) ([]model.Transaction, error)
}

// Error is returned when a provider request fails.
// The cache is left unchanged when a fetch returns an Error.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (HTTP %d): %s", e.StatusCode, e.Message)
}
