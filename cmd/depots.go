package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/calendar"
	"github.com/sells-group/route-planner/internal/depot"
	"github.com/sells-group/route-planner/internal/export"
	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/store"
	"github.com/sells-group/route-planner/internal/textnorm"
)

var depotsCmd = &cobra.Command{
	Use:   "depots",
	Short: "Plan depots for one work area and print them",
	Long:  "Clusters a territory's leads into one depot per route day, snaps days with appointments to the nearest centroid, replaces the stored depots and prints the plan.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		territory, _ := cmd.Flags().GetString("territory")
		subArea, _ := cmd.Flags().GetString("sub-area")
		startFlag, _ := cmd.Flags().GetString("start")
		shpPath, _ := cmd.Flags().GetString("shp")

		walker, err := newWalker()
		if err != nil {
			return err
		}
		start, err := routeDayStart(walker, startFlag)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		plan, err := planDepots(ctx, st, walker, territory, subArea, start)
		if err != nil {
			return err
		}
		if plan == nil {
			fmt.Fprintln(os.Stderr, "No leads found for work area.")
			return nil
		}

		formatDepots(os.Stdout, plan)

		if shpPath != "" {
			if err := export.WriteDepotShapefile(shpPath, plan.Depots); err != nil {
				return err
			}
			zap.L().Info("depot shapefile written", zap.String("path", shpPath))
		}
		return nil
	},
}

// depotsStore is the subset of store.Store the depots command uses.
type depotsStore interface {
	depot.Store
	ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error)
}

// planDepots plans the depots of a territory, or of one municipality in it
// when subArea is set.
func planDepots(ctx context.Context, st depotsStore, walker *calendar.Walker, territory, subArea string, start *time.Time) (*depot.Plan, error) {
	filter := store.CompanyFilter{TerritoryID: territory}
	workAreaID := territory
	if subArea != "" {
		filter.SubAreaKey = textnorm.SubAreaKey(territory, subArea)
		workAreaID = filter.SubAreaKey
	}
	companies, err := st.ListCompanies(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "depots: list companies")
	}

	plan, err := depot.New(walker, depot.Scope(st, territory, companies), int64(cfg.Routing.ClusterSeed)).
		Plan(ctx, model.WorkArea{ID: workAreaID, Companies: companies}, start)
	if err != nil {
		return nil, eris.Wrap(err, "depots")
	}
	return plan, nil
}

func formatDepots(w io.Writer, plan *depot.Plan) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDAY\tLON\tLAT")
	for _, d := range plan.Depots {
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\n", d.Name, d.Day.Format("2006-01-02 15:04"), d.Centroid.Lon, d.Centroid.Lat)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nYears: %v\n", plan.Years)
}

func init() {
	depotsCmd.Flags().String("territory", "", "territory id (required)")
	depotsCmd.Flags().String("sub-area", "", "municipality within the territory")
	depotsCmd.Flags().String("start", "", "first route day, YYYY-MM-DD (default: routing.next_days from today)")
	depotsCmd.Flags().String("shp", "", "also write the depots to this shapefile")
	_ = depotsCmd.MarkFlagRequired("territory")
	rootCmd.AddCommand(depotsCmd)
}
