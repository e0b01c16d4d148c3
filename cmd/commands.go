package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	service "github.com/okian/petroenergy/internal/app"
	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/internal/sampledata"
	"github.com/spf13/cobra"
)

var errInvalidFlag = errors.New("invalid flag value")

// trainCmd loads or trains both models and reports how each was obtained.
func (c *cli) trainCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Load compatible models or train new ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := c.newService(service.WithForceRetrain(force))
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			states, _ := svc.GetStats()["models"].(map[string]string)
			kinds := make([]string, 0, len(states))
			for k := range states {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			out := cmd.OutOrStdout()
			for _, k := range kinds {
				fmt.Fprintf(out, "%s: %s\n", k, states[k])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Retrain even when a compatible artifact exists")
	return cmd
}

// forecastCmd prints daily price predictions.
func (c *cli) forecastCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Print WTI and Brent forecasts starting today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 || days > model.MaxForecastDays {
				return fmt.Errorf("%w: --days must be between 0 and %d", errInvalidFlag, model.MaxForecastDays)
			}
			ctx := cmd.Context()
			svc := c.newService()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			preds, err := svc.Forecast(ctx, days)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "DATE\tDAY\tWTI\tBRENT")
			for _, p := range preds {
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", p.Date.Format(time.DateOnly), p.DayOfYear, p.WTI, p.Brent)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to forecast (0 uses forecast_horizon_days)")
	return cmd
}

// reportCmd prints the ranked maintenance table.
func (c *cli) reportCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print equipment ranked by maintenance priority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := c.newService()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			rows, err := svc.MaintenanceReport(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no equipment needs attention")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "PRIORITY\tFACILITY\tEQUIPMENT\tMIN_HEALTH\tLAST_SEEN")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n",
					r.Priority, r.FacilityID, r.EquipmentID, r.MinHealthScore, r.LastSeen.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "Maximum rows (0 for all, negative uses report_limit)")
	return cmd
}

// cleanupCmd removes artifacts outside the compatible version set.
func (c *cli) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete model artifacts from incompatible versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deleted, err := c.newService().Cleanup(cmd.Context())
			out := cmd.OutOrStdout()
			for _, path := range deleted {
				fmt.Fprintf(out, "deleted %s\n", path)
			}
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Fprintln(out, "nothing to delete")
			}
			return nil
		},
	}
}

// generateCmd writes synthetic market and equipment CSVs.
func (c *cli) generateCmd() *cobra.Command {
	cfg := sampledata.DefaultConfig()
	var dir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic market and equipment datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			market, equipment, err := sampledata.WriteFiles(cmd.Context(), dir, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", market)
			fmt.Fprintf(out, "wrote %s\n", equipment)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "out", "o", "data", "Output directory")
	cmd.Flags().IntVar(&cfg.Days, "days", cfg.Days, "Number of days of history")
	cmd.Flags().IntVar(&cfg.Facilities, "facilities", cfg.Facilities, "Number of facilities")
	cmd.Flags().IntVar(&cfg.EquipmentPerFacility, "equipment", cfg.EquipmentPerFacility, "Equipment per facility")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	return cmd
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
