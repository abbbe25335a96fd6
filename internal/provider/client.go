package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/model"
)

// Endpoint describes one provider's HTTP surface.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Client is the HTTP implementation of Provider. Each configured source maps
// to one endpoint exposing GET /transactions with start, end, and cursor
// query parameters.
type Client struct {
	endpoints  map[model.Source]Endpoint
	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient creates an HTTP provider client.
func NewClient(endpoints map[model.Source]Endpoint, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: log.WithField("component", "provider"),
	}
}

// wireTransaction is the normalized row shape providers return.
type wireTransaction struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type wirePage struct {
	Transactions []wireTransaction `json:"transactions"`
	NextCursor   string            `json:"nextCursor"`
}

// FetchTransactions pulls all pages for [start, end] and normalizes rows.
func (c *Client) FetchTransactions(ctx context.Context, source model.Source, start, end time.Time) ([]model.Transaction, error) {
	endpoint, ok := c.endpoints[source]
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint configured for %q", model.ErrUnknownSource, source)
	}

	out := make([]model.Transaction, 0)
	cursor := ""
	pages := 0

	for {
		page, err := c.requestPage(ctx, endpoint, start, end, cursor)
		if err != nil {
			return nil, err
		}
		pages++

		for _, row := range page.Transactions {
			tx, err := normalizeRow(source, row)
			if err != nil {
				c.log.WithError(err).WithField("id", row.ID).Warn("skipping malformed provider row")
				continue
			}
			out = append(out, tx)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.log.WithFields(logrus.Fields{
		"source": source,
		"start":  core.FormatDate(start),
		"end":    core.FormatDate(end),
		"rows":   len(out),
		"pages":  pages,
	}).Debug("provider fetch complete")

	return out, nil
}

// requestPage performs one GET with retry on 5xx/429 and exponential
// back-off, honoring Retry-After.
func (c *Client) requestPage(ctx context.Context, endpoint Endpoint, start, end time.Time, cursor string) (*wirePage, error) {
	q := url.Values{}
	q.Set("start", core.FormatDate(start))
	q.Set("end", core.FormatDate(end))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	urlStr := fmt.Sprintf("%s/transactions?%s", endpoint.BaseURL, q.Encode())

	maxRetries := 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-API-Key", endpoint.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < maxRetries {
				wait := time.Duration(1<<(attempt-1)) * time.Second
				c.log.WithError(err).Debugf("attempt %d failed, retrying in %v", attempt, wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &Error{StatusCode: resp.StatusCode, Message: string(body)}
			if attempt < maxRetries {
				wait := time.Duration(1<<(attempt-1)) * time.Second
				if resp.StatusCode == http.StatusTooManyRequests {
					if ra := resp.Header.Get("Retry-After"); ra != "" {
						if secs, err := strconv.Atoi(ra); err == nil {
							wait = time.Duration(secs) * time.Second
						}
					}
				}
				c.log.Debugf("attempt %d got HTTP %d, retrying in %v", attempt, resp.StatusCode, wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 400 {
			return nil, &Error{StatusCode: resp.StatusCode, Message: string(body)}
		}

		var page wirePage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse provider response: %w", err)
		}
		return &page, nil
	}

	return nil, lastErr
}

func normalizeRow(source model.Source, row wireTransaction) (model.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount %q: %w", row.Amount, err)
	}

	txType := model.TxType(row.Type)
	switch txType {
	case model.TypeIncome, model.TypeExpense:
	default:
		return model.Transaction{}, fmt.Errorf("invalid transaction type %q", row.Type)
	}

	tx := model.Transaction{
		ID:          row.ID,
		Source:      source,
		Date:        date,
		Amount:      amount,
		Type:        txType,
		Category:    row.Category,
		Description: row.Description,
	}
	return tx.Normalize(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
