package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
	"github.com/mozocode/On-The-Way-Rebuild/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file.yaml>...",
	Short: "Replay dispatch scenarios against an in-memory store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	log := logger.New("scenario")
	w := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		rep, err := scenarios.Run(ctx, sc, log)
		if err == nil {
			err = scenarios.Check(sc, rep)
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", sc.Name, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %s after %d wave(s), notified [%s]\n",
			sc.Name, rep.Outcome.Result, rep.Outcome.Waves, strings.Join(rep.Outcome.Notified, " "))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}
