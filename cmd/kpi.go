package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/app"
	"github.com/mozocode/On-The-Way-Rebuild/config"
	"github.com/mozocode/On-The-Way-Rebuild/infra/kpi"
	"github.com/mozocode/On-The-Way-Rebuild/jobs/backfill"
)

var kpiDays int

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Per-hero completed job ledger",
}

var kpiShowCmd = &cobra.Command{
	Use:   "show <hero-id>",
	Short: "Print a hero's daily totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runKPIShow,
}

var kpiBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Credit every completed job of the store to the ledger",
	RunE:  runKPIBackfill,
}

func init() {
	kpiShowCmd.Flags().IntVar(&kpiDays, "days", 30, "number of days to show")
	kpiCmd.AddCommand(kpiShowCmd, kpiBackfillCmd)
	rootCmd.AddCommand(kpiCmd)
}

func openKPI(cfg *config.Config) (*kpi.SQLiteStore, error) {
	if cfg.KPI.Path == "" {
		return nil, fmt.Errorf("kpi.path is not configured")
	}
	return kpi.NewSQLiteStore(cfg.KPI.Path)
}

func runKPIShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openKPI(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	end := time.Now()
	recs, err := ledger.Query(cmd.Context(), args[0], end.AddDate(0, 0, -kpiDays), end)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tJOBS\tSERVICE MIN")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", r.Date.Format(time.DateOnly), r.Jobs, r.ServiceMinutes)
	}
	return tw.Flush()
}

func runKPIBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openKPI(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()
	st, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	n, err := backfill.Backfill(cmd.Context(), st, ledger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d completed jobs processed\n", n)
	return nil
}
