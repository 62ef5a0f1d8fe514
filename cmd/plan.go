package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/app"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/vehicle"
	"github.com/kilianp07/fleetsim/core/vrp"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/solver"
	"github.com/kilianp07/fleetsim/pkg/export"
)

var (
	planFleet  string
	planFormat string
)

var planCmd = &cobra.Command{
	Use:   "plan <bookings>",
	Short: "Compute the pickup plan of a single truck with the routing solver",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planFleet, "fleet", "", "fleet whose depot and settings are used (default: first fleet)")
	planCmd.Flags().StringVar(&planFormat, "format", "json", "output format: json or csv")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var fleet *config.FleetConfig
	for i := range cfg.Fleets {
		if planFleet == "" || cfg.Fleets[i].Name == planFleet {
			fleet = &cfg.Fleets[i]
			break
		}
	}
	if fleet == nil {
		return fmt.Errorf("no fleet %q configured", planFleet)
	}
	s, err := fleet.LoadSettings()
	if err != nil {
		return err
	}
	bookings, err := app.LoadBookings(args[0])
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}

	planCfg := cfg.Solver.Planner()
	session := cfg.Solver.Auth.HTTPClient(&http.Client{Timeout: planCfg.Timeout})
	planner := vrp.NewPlanner(planCfg, solver.New(cfg.Solver.URL, session), nil, nil, logger.New("vrp"))
	truck := vehicle.New(vehicle.Config{
		ID:             fleet.Name + "-plan",
		FleetID:        fleet.Name,
		Start:          fleet.Depot,
		ParcelCapacity: fleet.ParcelCapacity,
		Compartments:   fleet.Compartments,
		Settings:       s,
		Logger:         logger.New("truck"),
	})
	defer truck.Stop()
	d := dispatch.NewVroom(dispatch.VroomConfig{FleetID: fleet.Name, Settings: s, Planner: planner}, []dispatch.Vehicle{truck}, logger.New("dispatch"))

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	plan, err := d.PlanTruck(ctx, truck, bookings)
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), planFormat, export.Steps(truck.ID(), plan))
}
