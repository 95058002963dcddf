package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/app"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
	"github.com/mozocode/On-The-Way-Rebuild/infra/mqtt"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <job-id>",
	Short: "Run the wave dispatch for an idle job and print the outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  dispatchJob,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	// Offers go out over MQTT only; the push and fanout notifiers belong to
	// the long-running service.
	var n notify.Notifier
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewPahoClient(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		defer client.Disconnect()
		n = mqtt.NewNotifier(client, cfg.MQTT.Topics())
	}
	eng, err := dispatch.NewEngine(st, n, cfg.Dispatch, nil, nil, logger.New("dispatch"))
	if err != nil {
		return err
	}
	defer eng.Close()

	out, err := eng.Dispatch(ctx, args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "job:         %s\n", out.JobID)
	fmt.Fprintf(w, "result:      %s\n", out.Result)
	fmt.Fprintf(w, "waves:       %d\n", out.Waves)
	fmt.Fprintf(w, "notified:    %s\n", strings.Join(out.Notified, ", "))
	if out.AcceptedBy != "" {
		fmt.Fprintf(w, "accepted by: %s\n", out.AcceptedBy)
	}
	fmt.Fprintf(w, "duration:    %s\n", out.Duration)
	return nil
}
