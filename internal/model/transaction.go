// Package model defines the normalized financial records fincache operates on.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source identifies the external system a transaction was fetched from.
type Source string

const (
	SourceZoho   Source = "zoho"   // accounting system
	SourceStripe Source = "stripe" // payment processor
)

// Sources lists all known sources, in stable order.
var Sources = []Source{SourceZoho, SourceStripe}

// ParseSource validates a source string.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceZoho:
		return SourceZoho, nil
	case SourceStripe:
		return SourceStripe, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// TxType classifies a transaction's direction. Amounts are always positive
// magnitudes; direction is carried here.
type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

// Transaction is one normalized financial fact obtained from a provider.
// Year and Month are denormalized from Date for fast per-month grouping.
type Transaction struct {
	ID          string          `json:"id" csv:"id"`
	Source      Source          `json:"source" csv:"source"`
	Date        time.Time       `json:"date" csv:"date"`
	Year        int             `json:"year" csv:"year"`
	Month       int             `json:"month" csv:"month"`
	Amount      decimal.Decimal `json:"amount" csv:"amount"`
	Type        TxType          `json:"type" csv:"type"`
	Category    string          `json:"category,omitempty" csv:"category"`
	Description string          `json:"description,omitempty" csv:"description"`
}

// Key returns the upsert key. Rows are unique per (source, id).
func (t Transaction) Key() string {
	return string(t.Source) + "/" + t.ID
}

// Normalize truncates Date to day granularity, derives Year/Month, and
// assigns a UUID when the provider row carried no stable id.
func (t Transaction) Normalize() Transaction {
	t.Date = time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(), 0, 0, 0, 0, time.UTC)
	t.Year = t.Date.Year()
	t.Month = int(t.Date.Month())
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Amount.IsNegative() {
		t.Amount = t.Amount.Neg()
	}
	return t
}
