package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/export"
	"github.com/sells-group/route-planner/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a planning run to XLSX and depots to a shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runID, _ := cmd.Flags().GetString("run-id")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		shpPath, _ := cmd.Flags().GetString("shp")
		workArea, _ := cmd.Flags().GetString("work-area")

		if xlsxPath == "" && shpPath == "" {
			return eris.New("export: one of --xlsx or --shp is required")
		}
		if xlsxPath != "" && runID == "" {
			return eris.New("export: --run-id is required with --xlsx")
		}
		if shpPath != "" && workArea == "" {
			return eris.New("export: --work-area is required with --shp")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if xlsxPath != "" {
			report, err := loadReport(ctx, st, runID)
			if err != nil {
				return err
			}
			if err := export.WriteXLSX(xlsxPath, *report); err != nil {
				return err
			}
			zap.L().Info("run exported",
				zap.String("run_id", runID),
				zap.String("path", xlsxPath),
				zap.Int("routes", len(report.Routes)),
				zap.Int("routed", len(report.Routed)),
				zap.Int("unrouted", len(report.Unrouted)),
			)
		}

		if shpPath != "" {
			depots, err := st.ListDepots(ctx, workArea)
			if err != nil {
				return eris.Wrap(err, "export: list depots")
			}
			if err := export.WriteDepotShapefile(shpPath, depots); err != nil {
				return err
			}
			zap.L().Info("depots exported", zap.String("work_area", workArea), zap.Int("depots", len(depots)))
		}
		return nil
	},
}

// reportStore is the subset of store.Store a report reads.
type reportStore interface {
	ListRouted(ctx context.Context, runID string) ([]model.SolvedOrder, error)
	ListUnrouted(ctx context.Context, runID string) ([]model.UnroutedLead, error)
	ListRoutes(ctx context.Context, runID string) ([]model.RouteSummary, error)
}

func loadReport(ctx context.Context, st reportStore, runID string) (*export.Report, error) {
	routes, err := st.ListRoutes(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list routes")
	}
	routed, err := st.ListRouted(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list routed")
	}
	unrouted, err := st.ListUnrouted(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list unrouted")
	}
	if len(routes) == 0 && len(routed) == 0 && len(unrouted) == 0 {
		return nil, eris.Errorf("export: run %s not found", runID)
	}
	return &export.Report{Routes: routes, Routed: routed, Unrouted: unrouted}, nil
}

func init() {
	exportCmd.Flags().String("run-id", "", "run to export")
	exportCmd.Flags().String("xlsx", "", "write routes, routed and unrouted sheets to this workbook")
	exportCmd.Flags().String("shp", "", "write the work area's depots to this shapefile")
	exportCmd.Flags().String("work-area", "", "work area (territory or route-group key) whose depots to export")
	rootCmd.AddCommand(exportCmd)
}
