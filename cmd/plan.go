package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/planner"
	"github.com/sells-group/route-planner/internal/rebalance"
	"github.com/sells-group/route-planner/internal/sink"
	"github.com/sells-group/route-planner/internal/solver"
	"github.com/sells-group/route-planner/internal/store"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Allocate, cluster and solve routes for the stored leads",
	Long:  "Reads leads from the store, allocates them into route groups under the route budget, plans depots per route day, solves and rebalances each group, and writes routed, unrouted and route records.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("plan"); err != nil {
			return err
		}

		territory, _ := cmd.Flags().GetString("territory")
		startFlag, _ := cmd.Flags().GetString("start")
		runID, _ := cmd.Flags().GetString("run-id")
		publish, _ := cmd.Flags().GetBool("publish")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		companies, err := st.ListCompanies(ctx, store.CompanyFilter{TerritoryID: territory})
		if err != nil {
			return eris.Wrap(err, "plan: list companies")
		}
		if len(companies) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found. Run sync or import first.")
			return nil
		}

		walker, err := newWalker()
		if err != nil {
			return err
		}
		start, err := routeDayStart(walker, startFlag)
		if err != nil {
			return err
		}

		newSink := func(runID string) *sink.Sink { return sink.NewStoreSink(runID, st) }
		if publish {
			if err := cfg.Validate("publish"); err != nil {
				return err
			}
			newSink = func(runID string) *sink.Sink {
				return sink.NewFeatureSink(runID, sink.Layers{
					Routed:   newFeatureClient(cfg.FeatureServer.RoutedURL),
					Unrouted: newFeatureClient(cfg.FeatureServer.UnroutedURL),
					Routes:   newFeatureClient(cfg.FeatureServer.RoutesURL),
				})
			}
		}

		p := &planner.Planner{
			Walker:     walker,
			Store:      st,
			Solver:     solver.NewNearestNeighbor(),
			Rebalancer: rebalance.New(time.Duration(cfg.Routing.LateToleranceMinutes) * time.Minute),
			Seed:       int64(cfg.Routing.ClusterSeed),
			NewSink:    newSink,
		}

		sum, err := p.Run(ctx, companies, planner.Options{
			RunID:            runID,
			TotalRoutes:      cfg.Routing.TotalRoutes,
			VisitsPerRoute:   cfg.Routing.VisitsPerRoute,
			RouteDayStart:    start,
			Workers:          cfg.Batch.Workers,
			Workday:          time.Duration(cfg.Routing.WorkdayHours) * time.Hour,
			MaxResolvePasses: cfg.Routing.MaxResolvePasses,
		})
		if err != nil {
			return eris.Wrap(err, "plan")
		}

		zap.L().Info("plan complete", zap.String("run_id", sum.RunID))
		formatSummary(os.Stdout, sum)
		return nil
	},
}

func formatSummary(w io.Writer, s *planner.Summary) {
	fmt.Fprintf(w, "Run:        %s\n", s.RunID)
	fmt.Fprintf(w, "Groups:     %d (%d failed)\n", s.Groups, s.GroupsFailed)
	fmt.Fprintf(w, "Routes:     %d\n", s.Routes)
	fmt.Fprintf(w, "Routed:     %d\n", s.Routed)
	fmt.Fprintf(w, "Unrouted:   %d (%d over budget)\n", s.Unrouted, s.Discarded)
	if s.LateRoutes > 0 {
		fmt.Fprintf(w, "Late:       %d routes still miss an appointment\n", s.LateRoutes)
	}
	fmt.Fprintf(w, "Elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))
}

func init() {
	planCmd.Flags().String("territory", "", "plan only this territory (default: all)")
	planCmd.Flags().String("start", "", "first route day, YYYY-MM-DD (default: routing.next_days from today)")
	planCmd.Flags().String("run-id", "", "run identifier (default: random UUID)")
	planCmd.Flags().Bool("publish", false, "write outputs to the feature server instead of the store")
	rootCmd.AddCommand(planCmd)
}
