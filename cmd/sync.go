package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/store"
	"github.com/sells-group/route-planner/pkg/featureserver"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull leads and appointments from the feature server into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		where, _ := cmd.Flags().GetString("where")
		if where == "" {
			where = cfg.FeatureServer.Where
		}

		loc, err := cfg.Routing.Location()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := syncLeads(ctx, newFeatureClient(cfg.FeatureServer.LeadsURL), st, where, store.DefaultFieldMap(), loc)
		if err != nil {
			return err
		}

		zap.L().Info("sync complete",
			zap.Int("fetched", res.Fetched),
			zap.Int64("companies", res.Companies),
			zap.Int("appointments", res.Appointments),
			zap.Int("skipped", res.Skipped),
		)
		fmt.Fprintf(os.Stdout, "Synced %d leads (%d appointments, %d skipped)\n", res.Companies, res.Appointments, res.Skipped)
		return nil
	},
}

type syncResult struct {
	Fetched      int
	Companies    int64
	Appointments int
	Skipped      int
}

// syncStore is the subset of store.Store sync writes to.
type syncStore interface {
	UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error)
	UpsertAppointments(ctx context.Context, territoryID string, appts []model.Appointment) error
}

func syncLeads(ctx context.Context, client featureserver.Client, st syncStore, where string, fields store.FieldMap, loc *time.Location) (*syncResult, error) {
	records, err := client.GetRecords(ctx, featureserver.Query{
		Where:          where,
		OutFields:      fields.OutFields(),
		ReturnGeometry: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sync: fetch leads")
	}

	companies, skipped := store.CompaniesFromRecords(records, fields, loc)
	res, err := importCompanies(ctx, st, companies)
	if err != nil {
		return nil, err
	}
	res.Fetched = len(records)
	res.Skipped = skipped
	return res, nil
}

// importCompanies upserts companies and their appointments, territory by
// territory.
func importCompanies(ctx context.Context, st syncStore, companies []model.Company) (*syncResult, error) {
	n, err := st.UpsertCompanies(ctx, companies)
	if err != nil {
		return nil, eris.Wrap(err, "upsert companies")
	}

	byTerritory := make(map[string][]model.Company)
	for _, c := range companies {
		byTerritory[c.TerritoryID] = append(byTerritory[c.TerritoryID], c)
	}
	territories := make([]string, 0, len(byTerritory))
	for t := range byTerritory {
		territories = append(territories, t)
	}
	sort.Strings(territories)

	appointments := 0
	for _, t := range territories {
		appts := store.AppointmentsFromCompanies(byTerritory[t])
		if len(appts) == 0 {
			continue
		}
		if err := st.UpsertAppointments(ctx, t, appts); err != nil {
			return nil, eris.Wrapf(err, "upsert appointments for %s", t)
		}
		appointments += len(appts)
	}

	return &syncResult{Companies: n, Appointments: appointments}, nil
}

func init() {
	syncCmd.Flags().String("where", "", "feature-server where clause (default: featureserver.where)")
	rootCmd.AddCommand(syncCmd)
}
