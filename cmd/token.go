package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/auth"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <hero-id>",
	Short: "Issue a hero bearer token signed with http.jwt_secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tok, err := auth.NewHeroTokens(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer).Issue(args[0], tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
