package cmd

import (
	"fmt"
	"os"
	"streamjobs/internal/config"
	"streamjobs/internal/db"
	"streamjobs/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	debug   bool
	ownerID string
)

var rootCmd = &cobra.Command{
	Use:   "streamjobs",
	Short: "Background jobs for media migration, download and conversion",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		if cmd.Name() == "daemon" {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", defaultOwner(), "account the jobs belong to")
}

func defaultOwner() string {
	if owner := os.Getenv("STREAMJOBS_OWNER"); owner != "" {
		return owner
	}
	return "local"
}
