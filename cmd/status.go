package cmd

import (
	"fmt"
	"net/http"
	"streamjobs/internal/model"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [kind]",
	Short: "View job status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return printActive()
		}

		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}

		var status model.StatusResponse
		if _, err := call(http.MethodGet, "/jobs/"+string(kind)+"/status", nil, &status); err != nil {
			return err
		}

		printStatus(status)
		return nil
	},
}

func printActive() error {
	var result struct {
		Jobs   []model.StatusResponse `json:"jobs"`
		Active int                    `json:"active"`
	}

	if _, err := call(http.MethodGet, "/status", nil, &result); err != nil {
		return err
	}

	if len(result.Jobs) == 0 {
		fmt.Printf("no active jobs for %s (%d on the daemon)\n", ownerID, result.Active)
		return nil
	}

	for _, s := range result.Jobs {
		printStatus(s)
	}
	return nil
}

func printStatus(s model.StatusResponse) {
	progress := "..."
	if s.Progress != nil {
		progress = fmt.Sprintf("%d%%", *s.Progress)
	}

	fmt.Printf("%-11s %-13s %-6s %d/%d  errors=%d  size=%d  uptime=%s\n",
		s.Kind, s.Status, progress, s.Completed, s.Total, len(s.Errors), s.FinalSize,
		(time.Duration(s.Uptime) * time.Second).String())

	if s.CurrentItem != "" {
		line := "  current: " + s.CurrentItem
		if s.ItemProgress != nil {
			line += fmt.Sprintf(" (%d%%)", *s.ItemProgress)
		}
		fmt.Println(line)
	}

	if s.EstimatedRemaining != nil {
		fmt.Printf("  eta: %.1f min\n", *s.EstimatedRemaining)
	}

	if s.Error != "" {
		fmt.Printf("  error: %s\n", s.Error)
	}

	for _, e := range s.Errors {
		fmt.Printf("  ✗ %s: %s\n", e.ItemRef, e.Message)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
