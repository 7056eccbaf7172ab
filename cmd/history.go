package cmd

import (
	"fmt"
	"net/http"
	"streamjobs/internal/model"
	"streamjobs/internal/repository"

	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View finished jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs []struct {
				model.JobRecord
				Errors []model.ItemError `json:"errors"`
			} `json:"jobs"`
			Stats repository.Stats `json:"stats"`
		}

		if _, err := call(http.MethodGet, fmt.Sprintf("/jobs/history?n=%d", historyN), nil, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, j := range result.Jobs {
			mark := "✓"
			if j.State != model.JobStateCompleted || len(j.Errors) > 0 {
				mark = "✗"
			}

			fmt.Printf("%s [%s] %-10s %-9s %d/%d errors=%d\n",
				mark,
				j.FinishedAt.Format("2006-01-02 15:04:05"),
				j.Kind,
				j.State,
				j.ItemsCompleted,
				j.ItemsTotal,
				j.ErrorCount,
			)
		}

		fmt.Printf("total=%d completed=%d failed=%d cancelled=%d\n",
			result.Stats.Total, result.Stats.Completed, result.Stats.Failed, result.Stats.Cancelled)

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of jobs to show")
	rootCmd.AddCommand(historyCmd)
}
