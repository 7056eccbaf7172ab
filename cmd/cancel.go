package cmd

import (
	"fmt"
	"net/http"
	"streamjobs/internal/model"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [kind]",
	Short: "Cancel a running job after its current item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}

		status, err := call(http.MethodPost, "/jobs/"+string(kind)+"/cancel", nil, nil)
		if err != nil {
			return err
		}

		if status == http.StatusNotFound {
			return fmt.Errorf("no %s job for %s", kind, ownerID)
		}

		fmt.Printf("%s job cancel requested\n", kind)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
