package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tx(id, date string, amount int64) model.Transaction {
	return model.Transaction{
		ID:     id,
		Date:   day(date),
		Amount: decimal.NewFromInt(amount),
		Type:   model.TypeExpense,
	}
}

// backends returns each Backend implementation under a name.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	return map[string]Backend{
		"memory":     NewMemoryBackend(),
		"filesystem": NewFilesystemBackend(t.TempDir()),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rows := []model.Transaction{tx("a", "2025-05-10", 100), tx("b", "2025-05-11", 200)}
			require.NoError(t, b.UpsertTransactions(model.SourceZoho, rows))
			require.NoError(t, b.UpsertTransactions(model.SourceZoho, rows))

			got, err := b.ReadTransactions(model.SourceZoho, day("2025-05-01"), day("2025-05-31"))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "a", got[0].ID)
			assert.Equal(t, model.SourceZoho, got[0].Source)
			assert.Equal(t, 2025, got[0].Year)
			assert.Equal(t, 5, got[0].Month)
		})
	}
}

func TestReadIsRangeScoped(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.UpsertTransactions(model.SourceStripe, []model.Transaction{
				tx("a", "2025-04-30", 1),
				tx("b", "2025-05-10", 2),
				tx("c", "2025-06-01", 3),
			}))

			got, err := b.ReadTransactions(model.SourceStripe, day("2025-05-01"), day("2025-05-31"))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "b", got[0].ID)

			// Other source stays empty
			got, err = b.ReadTransactions(model.SourceZoho, day("2025-01-01"), day("2025-12-31"))
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestDeleteTransactionsScoped(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.UpsertTransactions(model.SourceZoho, []model.Transaction{
				tx("a", "2025-05-05", 1),
				tx("b", "2025-05-20", 2),
				tx("c", "2025-06-02", 3),
			}))
			require.NoError(t, b.UpsertTransactions(model.SourceStripe, []model.Transaction{
				tx("x", "2025-05-10", 9),
			}))

			deleted, err := b.DeleteTransactions(model.SourceZoho, day("2025-05-01"), day("2025-05-31"))
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			// Out-of-range row and other-source row survive
			n, err := b.CountTransactions(model.SourceZoho, day("2025-01-01"), day("2025-12-31"))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			n, err = b.CountTransactions(model.SourceStripe, day("2025-01-01"), day("2025-12-31"))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestDeleteAllTransactions(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.UpsertTransactions(model.SourceZoho, []model.Transaction{
				tx("a", "2025-01-05", 1),
				tx("b", "2025-07-20", 2),
			}))

			deleted, err := b.DeleteAllTransactions(model.SourceZoho)
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			keys, err := b.DistinctMonths()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestDistinctMonths(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.UpsertTransactions(model.SourceZoho, []model.Transaction{
				tx("a", "2025-05-01", 1),
				tx("b", "2025-05-20", 2),
				tx("c", "2025-06-02", 3),
			}))
			require.NoError(t, b.UpsertTransactions(model.SourceStripe, []model.Transaction{
				tx("x", "2025-05-10", 9),
			}))

			keys, err := b.DistinctMonths()
			require.NoError(t, err)
			assert.Equal(t, []MonthKey{
				{Source: model.SourceStripe, Year: 2025, Month: 5},
				{Source: model.SourceZoho, Year: 2025, Month: 5},
				{Source: model.SourceZoho, Year: 2025, Month: 6},
			}, keys)

			n, err := b.CountMonth(model.SourceZoho, 2025, 5)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestSegmentsRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			set, err := b.LoadSegments(model.SourceZoho)
			require.NoError(t, err)
			assert.Equal(t, 0, set.Len())

			set.Add(interval.MustNew(day("2025-05-01"), day("2025-05-10")))
			set.Add(interval.MustNew(day("2025-05-20"), day("2025-05-31")))
			require.NoError(t, b.SaveSegments(model.SourceZoho, set))

			loaded, err := b.LoadSegments(model.SourceZoho)
			require.NoError(t, err)
			assert.Equal(t, set.Intervals(), loaded.Intervals())

			// Other source unaffected
			other, err := b.LoadSegments(model.SourceStripe)
			require.NoError(t, err)
			assert.Equal(t, 0, other.Len())
		})
	}
}

func TestMonthlyIndexRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := b.GetMonthlyEntry(model.SourceStripe, 2025, 5)
			require.NoError(t, err)
			assert.Nil(t, got)

			entry := MonthlyEntry{
				Source:           model.SourceStripe,
				Year:             2025,
				Month:            5,
				TransactionCount: 5,
				Status:           StatusComplete,
				UpdatedAt:        day("2025-06-01"),
			}
			require.NoError(t, b.UpsertMonthlyEntry(entry))

			got, err = b.GetMonthlyEntry(model.SourceStripe, 2025, 5)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 5, got.TransactionCount)
			assert.Equal(t, StatusComplete, got.Status)

			// Upsert replaces in place
			entry.TransactionCount = 7
			entry.Status = StatusPartial
			require.NoError(t, b.UpsertMonthlyEntry(entry))

			entries, err := b.ListMonthlyEntries()
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, 7, entries[0].TransactionCount)
		})
	}
}

func TestFilesystemLayoutAndAtomicWrite(t *testing.T) {
	root := t.TempDir()
	b := NewFilesystemBackend(root)

	require.NoError(t, b.UpsertTransactions(model.SourceZoho, []model.Transaction{tx("a", "2025-05-10", 1)}))

	path := filepath.Join(root, "transactions", "zoho", "2025", "05.json")
	_, err := os.Stat(path)
	require.NoError(t, err)

	// No temp file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemCorruptFileTreatedAsMissing(t *testing.T) {
	root := t.TempDir()
	b := NewFilesystemBackend(root)

	path := b.MonthPath(model.SourceZoho, 2025, 5)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	got, err := b.ReadTransactions(model.SourceZoho, day("2025-05-01"), day("2025-05-31"))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Corrupt file was removed so the range just looks unfetched
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
