package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := call(http.MethodPost, "/stop", nil, nil); err != nil {
			return err
		}

		fmt.Println("stopping")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
