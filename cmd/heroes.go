package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/app"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

var heroesCmd = &cobra.Command{
	Use:   "heroes",
	Short: "Inspect and register heroes",
}

var heroesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List heroes",
	RunE:  runHeroesLs,
}

var (
	addName     string
	addLat      float64
	addLng      float64
	addServices []string
	addOffline  bool
)

var heroesAddCmd = &cobra.Command{
	Use:   "add <hero-id>",
	Short: "Register or update a verified hero",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeroesAdd,
}

func init() {
	heroesAddCmd.Flags().StringVar(&addName, "name", "", "display name")
	heroesAddCmd.Flags().Float64Var(&addLat, "lat", 0, "latitude of the last known position")
	heroesAddCmd.Flags().Float64Var(&addLng, "lng", 0, "longitude of the last known position")
	heroesAddCmd.Flags().StringSliceVar(&addServices, "services", nil, "service types, empty for all")
	heroesAddCmd.Flags().BoolVar(&addOffline, "offline", false, "register the hero offline")
	heroesCmd.AddCommand(heroesLsCmd, heroesAddCmd)
	rootCmd.AddCommand(heroesCmd)
}

func runHeroesLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	heroes, err := st.QueryHeroes(cmd.Context(), store.HeroQuery{})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tONLINE\tVERIFIED\tJOB\tLOCATION\tSERVICES")
	for _, h := range heroes {
		loc := "-"
		if h.Location != nil {
			loc = fmt.Sprintf("%.5f,%.5f", h.Location.Lat, h.Location.Lng)
		}
		job := h.CurrentJobID
		if job == "" {
			job = "-"
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\t%s\n", h.ID, h.Online, h.Verified, job, loc, strings.Join(h.ServiceTypes, ","))
	}
	return tw.Flush()
}

func runHeroesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	id := args[0]
	err = st.RunTx(cmd.Context(), func(tx store.Tx) error {
		now := st.Now()
		h, err := tx.GetHero(id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		h.ID = id
		if addName != "" {
			h.DisplayName = addName
		}
		h.Online = !addOffline
		h.Verified = true
		if len(addServices) > 0 {
			h.ServiceTypes = addServices
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			h.Location = &model.Location{Point: model.Point{Lat: addLat, Lng: addLng}, UpdatedAt: now}
		}
		h.UpdatedAt = now
		return tx.PutHero(h)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "hero %s saved\n", id)
	return nil
}
