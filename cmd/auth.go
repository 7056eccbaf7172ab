package cmd

import (
	"os"
	"streamjobs/internal/auth"
	"streamjobs/internal/config"

	"github.com/spf13/cobra"
)

var authAddr string

var authCmd = &cobra.Command{
	Use:       "auth [gdrive|dropbox]",
	Short:     "Authorize a cloud source for migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{auth.GDrive, auth.Dropbox},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}

		p, err := auth.Load(dir, args[0])
		if err != nil {
			return err
		}

		return p.Authorize(cmd.Context(), authAddr, os.Stdout)
	},
}

func init() {
	authCmd.Flags().StringVar(&authAddr, "listen", "127.0.0.1:9999", "loopback address for the OAuth callback")
	rootCmd.AddCommand(authCmd)
}
