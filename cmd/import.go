package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/export"
)

var importXLSXPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from an XLSX workbook into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		loc, err := cfg.Routing.Location()
		if err != nil {
			return err
		}

		companies, err := export.ReadLeadsXLSX(importXLSXPath, loc)
		if err != nil {
			return eris.Wrap(err, "import xlsx")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := importCompanies(ctx, st, companies)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int64("companies", res.Companies),
			zap.Int("appointments", res.Appointments),
			zap.String("xlsx", importXLSXPath),
		)
		fmt.Fprintf(os.Stdout, "Imported %d leads (%d appointments)\n", res.Companies, res.Appointments)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX file (required)")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
