package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/app"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
	"github.com/mozocode/On-The-Way-Rebuild/infra/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/simulator"
)

var simOpts struct {
	size        int
	lat, lng    float64
	radius      float64
	interval    time.Duration
	drift       float64
	minDelay    time.Duration
	maxDelay    time.Duration
	declineRate float64
	dropRate    float64
	seed        int64
	register    bool
	services    []string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fleet of simulated heroes against the MQTT broker",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVarP(&simOpts.size, "heroes", "n", 20, "number of simulated heroes")
	f.Float64Var(&simOpts.lat, "lat", 40.7128, "fleet center latitude")
	f.Float64Var(&simOpts.lng, "lng", -74.0060, "fleet center longitude")
	f.Float64Var(&simOpts.radius, "radius", 5000, "fleet radius in meters")
	f.DurationVar(&simOpts.interval, "interval", 10*time.Second, "location report interval")
	f.Float64Var(&simOpts.drift, "drift", 50, "maximum move between reports in meters")
	f.DurationVar(&simOpts.minDelay, "min-delay", time.Second, "minimum answer latency")
	f.DurationVar(&simOpts.maxDelay, "max-delay", 5*time.Second, "maximum answer latency")
	f.Float64Var(&simOpts.declineRate, "decline-rate", 0.3, "probability of declining an offer")
	f.Float64Var(&simOpts.dropRate, "drop-rate", 0.1, "probability of ignoring an offer")
	f.Int64Var(&simOpts.seed, "seed", 1, "random seed for fleet placement")
	f.BoolVar(&simOpts.register, "register", false, "upsert the generated heroes into the configured store first")
	f.StringSliceVar(&simOpts.services, "services", nil, "service types of every hero, empty for all")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("simulator")
	heroes := simulator.GenerateFleet(simulator.FleetConfig{
		Size:         simOpts.size,
		Center:       model.Point{Lat: simOpts.lat, Lng: simOpts.lng},
		RadiusM:      simOpts.radius,
		ServiceTypes: simOpts.services,
		Seed:         simOpts.seed,
	})
	if simOpts.register {
		st, err := app.OpenStore(cfg.Store)
		if err != nil {
			return err
		}
		for _, h := range heroes {
			h.UpdatedAt = st.Now()
			if err := st.PutHero(ctx, h); err != nil {
				_ = st.Close()
				return fmt.Errorf("register %s: %w", h.ID, err)
			}
		}
		if err := st.Close(); err != nil {
			return err
		}
		log.Infof("registered %d heroes", len(heroes))
	}

	mcfg := cfg.MQTT
	mcfg.ClientID = fmt.Sprintf("otw-simulator-%d", time.Now().UnixNano())
	mcfg.LWTTopic = ""
	client, err := mqtt.NewPahoClient(mcfg, logger.New("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	strategy := simulator.NewRandomAnswer(simOpts.minDelay, simOpts.maxDelay, simOpts.declineRate, simOpts.dropRate, 0)
	log.Infof("running %d heroes around %.4f,%.4f", len(heroes), simOpts.lat, simOpts.lng)
	t := simulator.RunFleet(ctx, client, cfg.MQTT.Topics(), heroes, simulator.RunOptions{
		Strategy: strategy,
		Interval: simOpts.interval,
		DriftM:   simOpts.drift,
	}, log)
	fmt.Fprintf(cmd.OutOrStdout(), "offers=%d accepted=%d declined=%d ignored=%d won=%d lost=%d\n",
		t.Offers, t.Accepted, t.Declined, t.Ignored, t.Won, t.Lost)
	return nil
}
