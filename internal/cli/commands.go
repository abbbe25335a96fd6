package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/finboard/fincache/internal/core"
	"github.com/finboard/fincache/internal/interval"
	"github.com/finboard/fincache/internal/model"
	"github.com/finboard/fincache/internal/output"
)

func init() {
	// Add all subcommands
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cacheCmd)

	// Add relative period commands
	for _, period := range []string{"today", "yesterday", "this-week", "last-week", "this-month", "last-month", "this-quarter", "last-quarter"} {
		rootCmd.AddCommand(createRelativePeriodCmd(period))
	}

	cacheCmd.AddCommand(cacheVerifyCmd)
	cacheCmd.AddCommand(cacheRepairCmd)
	cacheCmd.AddCommand(cacheDiagnoseCmd)
	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheResetBreakerCmd)

	exportCmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	cacheClearCmd.Flags().String("start", "", "Start date of the range to clear (YYYY-MM-DD)")
	cacheClearCmd.Flags().String("end", "", "End date of the range to clear (YYYY-MM-DD)")
}

// getCmd fetches transactions for an explicit date range
var getCmd = &cobra.Command{
	Use:   "get [start] [end]",
	Short: "Get transactions for a date range (YYYY-MM-DD), fetching gaps from the provider",
	Args:  cobra.ExactArgs(2),
	RunE:  handleGet,
}

// planCmd shows the cache verdict without fetching anything
var planCmd = &cobra.Command{
	Use:   "plan [start] [end]",
	Short: "Show the cache plan for a range: full hit, partial hit, or miss",
	Args:  cobra.ExactArgs(2),
	RunE:  handlePlan,
}

var exportCmd = &cobra.Command{
	Use:   "export [start] [end]",
	Short: "Export transactions for a range as CSV",
	Args:  cobra.ExactArgs(2),
	RunE:  handleExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics per source",
	RunE:  handleStats,
}

// cacheCmd groups the cache administration subcommands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache administration (verify, repair, diagnose, sync, clear)",
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify [start] [end]",
	Short: "Check segment coverage against stored transaction rows",
	Args:  cobra.ExactArgs(2),
	RunE:  handleVerify,
}

var cacheRepairCmd = &cobra.Command{
	Use:   "repair [start] [end]",
	Short: "Rebuild segment coverage from stored transaction rows",
	Args:  cobra.ExactArgs(2),
	RunE:  handleRepair,
}

var cacheDiagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "List monthly index entries that are missing or stale (read-only)",
	RunE:  handleDiagnose,
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild missing or stale monthly index entries from stored rows",
	RunE:  handleSync,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [source|all]",
	Short: "Delete cached rows and segments for a source (or all sources)",
	Args:  cobra.ExactArgs(1),
	RunE:  handleClear,
}

var cacheResetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker",
	Short: "Reset the refresh coordinator's session counters",
	RunE:  handleResetBreaker,
}

func parseRangeArgs(args []string) (time.Time, time.Time, error) {
	start, err := core.ParseDate(args[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", args[0], err)
	}
	end, err := core.ParseDate(args[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", args[1], err)
	}
	return start, end, nil
}

func handleGet(cmd *cobra.Command, args []string) error {
	start, end, err := parseRangeArgs(args)
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	txs, plan, err := m.GetTransactions(cmd.Context(), source, start, end, forceRefresh, refreshMode())
	if err != nil {
		return err
	}

	if raw {
		output.PrintJSON(map[string]interface{}{"plan": plan, "transactions": txs})
		return nil
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", source, plan.Requested.String(), plan.Status)
	}
	output.PrintTransactions(os.Stdout, txs)
	return nil
}

func handlePlan(cmd *cobra.Command, args []string) error {
	start, end, err := parseRangeArgs(args)
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	plan, err := m.PlanQuery(source, start, end)
	if err != nil {
		return err
	}

	if raw {
		output.PrintJSON(plan)
	} else {
		output.PrintPlan(os.Stdout, plan)
	}
	return nil
}

func handleExport(cmd *cobra.Command, args []string) error {
	start, end, err := parseRangeArgs(args)
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	txs, _, err := m.GetTransactions(cmd.Context(), source, start, end, forceRefresh, refreshMode())
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return output.WriteTransactionsCSV(w, txs)
}

func handleStats(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	stats, err := m.DetailedStats()
	if err != nil {
		return err
	}
	if raw {
		output.PrintJSON(stats)
	} else {
		output.PrintStats(os.Stdout, stats)
	}
	return nil
}

func handleVerify(cmd *cobra.Command, args []string) error {
	start, end, err := parseRangeArgs(args)
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	report, err := m.VerifyCacheIntegrity(source, start, end)
	if err != nil {
		return err
	}
	if raw {
		output.PrintJSON(report)
	} else {
		output.PrintIntegrityReport(os.Stdout, report)
	}
	return nil
}

func handleRepair(cmd *cobra.Command, args []string) error {
	start, end, err := parseRangeArgs(args)
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	if err := m.RepairCacheSegments(source, start, end); err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("Repaired segments for %s %s to %s\n", source, core.FormatDate(start), core.FormatDate(end))
	}
	return nil
}

func handleDiagnose(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	report, err := m.DiagnoseMissingEntries()
	if err != nil {
		return err
	}
	if raw {
		output.PrintJSON(report)
	} else {
		output.PrintDiagnoseReport(os.Stdout, report)
	}
	return nil
}

func handleSync(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	report, err := m.SyncAllMissingEntries()
	if err != nil {
		return err
	}
	if raw {
		output.PrintJSON(report)
		return nil
	}
	fmt.Printf("Synced %d monthly index entries\n", report.Synced)
	for _, msg := range report.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
	return nil
}

func handleClear(cmd *cobra.Command, args []string) error {
	var sources []model.Source
	if args[0] == "all" {
		sources = model.Sources
	} else {
		source, err := model.ParseSource(args[0])
		if err != nil {
			return err
		}
		sources = []model.Source{source}
	}

	var rng *interval.Interval
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	if (startStr == "") != (endStr == "") {
		return fmt.Errorf("--start and --end must be used together")
	}
	if startStr != "" {
		start, end, err := parseRangeArgs([]string{startStr, endStr})
		if err != nil {
			return err
		}
		iv, err := interval.New(start, end)
		if err != nil {
			return err
		}
		rng = &iv
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	deleted, err := m.ClearCache(sources, rng)
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("Deleted %d transactions\n", deleted)
	}
	return nil
}

func handleResetBreaker(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	m.Coordinator().Reset()
	if !quiet {
		fmt.Println("Refresh coordinator reset")
	}
	return nil
}

func createRelativePeriodCmd(period string) *cobra.Command {
	return &cobra.Command{
		Use:   period,
		Short: fmt.Sprintf("Get transactions for %s", period),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleTimeRelative(cmd, period)
		},
	}
}

func handleTimeRelative(cmd *cobra.Command, period string) error {
	start, end, err := core.GetTimeRange(period, time.Now())
	if err != nil {
		return err
	}
	source, err := selectedSource()
	if err != nil {
		return err
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	txs, plan, err := m.GetTransactions(cmd.Context(), source, start, end, forceRefresh, refreshMode())
	if err != nil {
		return err
	}

	if raw {
		output.PrintJSON(map[string]interface{}{"plan": plan, "transactions": txs})
		return nil
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", source, plan.Requested.String(), plan.Status)
	}
	output.PrintTransactions(os.Stdout, txs)
	return nil
}
