package sink

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/store"
	"github.com/sells-group/route-planner/pkg/featureserver"
)

// Sink groups the three output cursors of a planning run.
type Sink struct {
	RunID    string
	Routed   *Cursor[model.SolvedOrder]
	Unrouted *Cursor[model.UnroutedLead]
	Routes   *Cursor[model.RouteSummary]
}

// Counts reports rows written per cursor.
func (s *Sink) Counts() (routed, unrouted, routes int) {
	return s.Routed.Count(), s.Unrouted.Count(), s.Routes.Count()
}

// OutputStore is the subset of store.Store the sink writes to.
type OutputStore interface {
	InsertRouted(ctx context.Context, runID string, order model.SolvedOrder) error
	InsertUnrouted(ctx context.Context, runID string, leads []model.UnroutedLead) error
	InsertRoute(ctx context.Context, route model.RouteSummary) error
}

var _ OutputStore = (store.Store)(nil)

// NewStoreSink writes every cursor into st.
func NewStoreSink(runID string, st OutputStore) *Sink {
	return &Sink{
		RunID: runID,
		Routed: NewCursor("routed", runID, WriterFunc[model.SolvedOrder](
			func(ctx context.Context, runID string, rows []model.SolvedOrder) error {
				for _, o := range rows {
					if err := st.InsertRouted(ctx, runID, o); err != nil {
						return err
					}
				}
				return nil
			})),
		Unrouted: NewCursor("unrouted", runID, WriterFunc[model.UnroutedLead](st.InsertUnrouted)),
		Routes: NewCursor("routes", runID, WriterFunc[model.RouteSummary](
			func(ctx context.Context, _ string, rows []model.RouteSummary) error {
				for _, r := range rows {
					if err := st.InsertRoute(ctx, r); err != nil {
						return err
					}
				}
				return nil
			})),
	}
}

// Layers names the feature-server clients for each output layer.
type Layers struct {
	Routed   featureserver.Client
	Unrouted featureserver.Client
	Routes   featureserver.Client
}

// NewFeatureSink inserts every cursor's rows into its feature layer. Writes
// are non-fatal: an exhausted insert surfaces as an error on the cursor.
func NewFeatureSink(runID string, layers Layers) *Sink {
	return &Sink{
		RunID: runID,
		Routed: NewCursor("routed", runID, featureWriter(layers.Routed, func(runID string, o model.SolvedOrder) featureserver.Record {
			return store.RoutedRecord(runID, o)
		})),
		Unrouted: NewCursor("unrouted", runID, featureWriter(layers.Unrouted, store.UnroutedRecord)),
		Routes: NewCursor("routes", runID, featureWriter(layers.Routes, func(_ string, r model.RouteSummary) featureserver.Record {
			return store.RouteRecord(r)
		})),
	}
}

func featureWriter[T any](c featureserver.Client, encode func(string, T) featureserver.Record) Writer[T] {
	return WriterFunc[T](func(ctx context.Context, runID string, rows []T) error {
		records := make([]featureserver.Record, len(rows))
		for i, r := range rows {
			records[i] = encode(runID, r)
		}
		res, err := c.WriteRecords(ctx, featureserver.OpInsert, records, featureserver.WriteOptions{})
		if err != nil {
			return err
		}
		if !res.Success {
			return eris.Errorf("sink: %d records, some rejected by the feature layer", len(records))
		}
		return nil
	})
}
