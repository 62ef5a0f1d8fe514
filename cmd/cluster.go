package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/app"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/clustering"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/settings"
	"github.com/kilianp07/fleetsim/infra/logger"
)

var clusterFleet string

var clusterCmd = &cobra.Command{
	Use:   "cluster <bookings>",
	Short: "Print the spatial partitions of a bookings file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCluster,
}

func init() {
	clusterCmd.Flags().StringVar(&clusterFleet, "fleet", "", "fleet whose clustering settings are used (default: first fleet)")
	rootCmd.AddCommand(clusterCmd)
}

// fleetSettings returns the settings of the named fleet, of the first fleet
// when name is empty, or the defaults without any fleet.
func fleetSettings(cfg *config.Config, name string) (*settings.Settings, error) {
	for _, f := range cfg.Fleets {
		if name == "" || f.Name == name {
			return f.LoadSettings()
		}
	}
	if name != "" {
		return nil, fmt.Errorf("unknown fleet %s", name)
	}
	return settings.Default(), nil
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := fleetSettings(cfg, clusterFleet)
	if err != nil {
		return err
	}
	bookings, err := app.LoadBookings(args[0])
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	c := clustering.New(s.Clustering, logger.New("clustering"), nil)
	parts := clustering.OrderByProximity(c.CreateSpatialChunks(context.Background(), bookings, cfg.ExperimentID, ""))
	out := make([]planstore.PartitionSummary, len(parts))
	for i, p := range parts {
		out[i] = p.Summary(cfg.ExperimentID, "")
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
