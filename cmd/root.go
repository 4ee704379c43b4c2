package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/calendar"
	"github.com/sells-group/route-planner/internal/config"
	"github.com/sells-group/route-planner/internal/resilience"
	"github.com/sells-group/route-planner/internal/store"
	"github.com/sells-group/route-planner/pkg/featureserver"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "route-planner",
	Short: "Field-sales route planner",
	Long:  "Groups geocoded leads into route families, plans one depot per route day, solves daily visit routes and rebalances late appointments.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN())
}

// newWalker builds the route-day walker from config.
func newWalker() (*calendar.Walker, error) {
	holidays, err := calendar.LoadHolidays(cfg.Routing.HolidaysFile)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Routing.Location()
	if err != nil {
		return nil, err
	}
	w := calendar.NewWalker(holidays, cfg.Routing.NextDays, cfg.Routing.StartHour, cfg.Routing.StartMinute)
	w.Now = func() time.Time { return time.Now().In(loc) }
	return w, nil
}

// newFeatureClient builds a client for one feature layer.
func newFeatureClient(layerURL string) featureserver.Client {
	fs := cfg.FeatureServer
	return featureserver.NewClient(layerURL,
		featureserver.WithToken(fs.Token),
		featureserver.WithPageSize(fs.PageSize),
		featureserver.WithRateLimit(fs.RatePerSec),
		featureserver.WithWritePolicy(resilience.FixedPolicy(fs.RetryAttempts, time.Duration(fs.RetrySleepSecs)*time.Second)),
	)
}

// parseDay parses a YYYY-MM-DD flag in the configured timezone. An empty
// value returns nil.
func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	loc, err := cfg.Routing.Location()
	if err != nil {
		return nil, err
	}
	d, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return nil, eris.Wrapf(err, "parse day %q", value)
	}
	d = time.Date(d.Year(), d.Month(), d.Day(), cfg.Routing.StartHour, cfg.Routing.StartMinute, 0, 0, loc)
	return &d, nil
}

// routeDayStart resolves the first route day: the --start value when set,
// otherwise the walker's start day moved forward to the next route day when
// it lands on a weekend or holiday.
func routeDayStart(walker *calendar.Walker, value string) (*time.Time, error) {
	if value != "" {
		return parseDay(value)
	}
	d := walker.StartRouteDay()
	if !walker.IsRouteDay(d) {
		d = walker.NextRouteDay(d)
	}
	return &d, nil
}
