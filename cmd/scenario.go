package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>...",
	Short: "Run QA scenarios on an instant clock and check their outcome",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			sc, err := scenarios.Load(path)
			if err != nil {
				return err
			}
			res, err := scenarios.Run(cmd.Context(), sc)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			status := "ok"
			if err := res.Check(sc.Expected); err != nil {
				status = "FAIL: " + err.Error()
				failed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s (%s)\n", sc.Name, status, res.Elapsed.Round(time.Millisecond))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}
