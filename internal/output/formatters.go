// Package output renders fincache results for the CLI: JSON, plain text
// tables, and CSV export.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/finboard/fincache/internal/cache"
	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/model"
)

// PrintJSON prints a single item as formatted JSON.
func PrintJSON(item interface{}) {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// WriteTransactionsCSV exports transactions as CSV using the model's csv tags.
func WriteTransactionsCSV(w io.Writer, txs []model.Transaction) error {
	return gocsv.Marshal(txs, w)
}

// PrintTransactions writes a plain-text transaction listing with a totals
// footer (income, expenses, net).
func PrintTransactions(w io.Writer, txs []model.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "No transactions found.")
		return
	}

	income := decimal.Zero
	expenses := decimal.Zero
	for _, tx := range txs {
		line := fmt.Sprintf("%s  %-8s %-8s %12s", core.FormatDate(tx.Date), tx.Source, tx.Type, tx.Amount.StringFixed(2))
		if tx.Category != "" {
			line += "  " + tx.Category
		}
		fmt.Fprintln(w, line)

		switch tx.Type {
		case model.TypeIncome:
			income = income.Add(tx.Amount)
		case model.TypeExpense:
			expenses = expenses.Add(tx.Amount)
		}
	}

	fmt.Fprintf(w, "\n%d transactions; income %s, expenses %s, net %s\n",
		len(txs), income.StringFixed(2), expenses.StringFixed(2), income.Sub(expenses).StringFixed(2))
}

// PrintPlan writes a human-readable query plan.
func PrintPlan(w io.Writer, plan cache.PlanResult) {
	fmt.Fprintf(w, "source:    %s\n", plan.Source)
	fmt.Fprintf(w, "requested: %s\n", plan.Requested.String())
	fmt.Fprintf(w, "status:    %s\n", plan.Status)
	for _, rng := range plan.CachedRanges {
		fmt.Fprintf(w, "  cached:  %s (%d days)\n", rng.String(), rng.Days())
	}
	for _, rng := range plan.MissingRanges {
		fmt.Fprintf(w, "  missing: %s (%d days)\n", rng.String(), rng.Days())
	}
}

// PrintStats writes per-source cache statistics and coordinator state.
func PrintStats(w io.Writer, stats cache.Stats) {
	for _, src := range stats.Sources {
		fmt.Fprintf(w, "%s: %d transactions, %d segments covering %d days, %d indexed months\n",
			src.Source, src.TransactionCount, src.SegmentCount, src.CoveredDays, src.IndexedMonths)
		for _, entry := range src.MonthlyEntries {
			fmt.Fprintf(w, "  %04d-%02d: %d rows (%s)\n", entry.Year, entry.Month, entry.TransactionCount, entry.Status)
		}
	}
	coord := stats.Coordinator
	fmt.Fprintf(w, "refreshes this session: %d/%d", coord.RefreshCount, coord.MaxPerSession)
	if coord.Refreshing {
		fmt.Fprint(w, " (one in flight)")
	}
	fmt.Fprintln(w)
	if coord.ConsecutiveErrors > 0 {
		fmt.Fprintf(w, "consecutive refresh errors: %d\n", coord.ConsecutiveErrors)
	}
}

// PrintIntegrityReport writes a verify result.
func PrintIntegrityReport(w io.Writer, report cache.IntegrityReport) {
	verdict := "OK"
	if !report.IsConsistent {
		verdict = "INCONSISTENT"
	}
	fmt.Fprintf(w, "%s %s: %s\n", report.Source, report.Range.String(), verdict)
	fmt.Fprintf(w, "  segments: %d covering %d days, transactions: %d\n",
		report.SegmentCount, report.CoveredDays, report.TransactionCount)
	for _, note := range report.Notes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}
}

// PrintDiagnoseReport writes the monthly index gaps found by diagnose.
func PrintDiagnoseReport(w io.Writer, report cache.DiagnoseReport) {
	if report.TotalMissing == 0 {
		fmt.Fprintln(w, "Monthly index is up to date.")
	}
	for _, entry := range report.MissingEntries {
		if entry.IndexedCount == nil {
			fmt.Fprintf(w, "%s %04d-%02d: %d rows, no index entry\n",
				entry.Source, entry.Year, entry.Month, entry.TransactionCount)
		} else {
			fmt.Fprintf(w, "%s %04d-%02d: %d rows, index says %d\n",
				entry.Source, entry.Year, entry.Month, entry.TransactionCount, *entry.IndexedCount)
		}
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(w, "error: %s\n", msg)
	}
}
