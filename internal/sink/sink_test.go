package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/model"
	"github.com/sells-group/route-planner/internal/resilience"
	"github.com/sells-group/route-planner/internal/store"
	"github.com/sells-group/route-planner/pkg/featureserver"
)

// exclusiveWriter fails the test if two writes overlap.
type exclusiveWriter struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	rows     []int
}

func (w *exclusiveWriter) Write(_ context.Context, _ string, rows []int) error {
	if w.inFlight.Add(1) > 1 {
		w.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	w.rows = append(w.rows, rows...)
	w.inFlight.Add(-1)
	return nil
}

func TestCursor_SerialisesConcurrentInserts(t *testing.T) {
	w := &exclusiveWriter{}
	c := NewCursor[int]("routed", "run1", w)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, c.Insert(context.Background(), g*100+i))
			}
		}(g)
	}
	wg.Wait()

	assert.False(t, w.overlap.Load(), "writes overlapped")
	assert.Len(t, w.rows, 80)
	assert.Equal(t, 80, c.Count())
	assert.Equal(t, "routed", c.Name())
}

func TestCursor_ErrorAndEmpty(t *testing.T) {
	c := NewCursor[int]("routes", "run1", WriterFunc[int](func(context.Context, string, []int) error {
		return assert.AnError
	}))
	require.NoError(t, c.Insert(context.Background()))

	err := c.Insert(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink: insert into routes")
	assert.Equal(t, 0, c.Count())
}

func TestStoreSink(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	s := NewStoreSink("run1", st)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("T%d#20260309", i)
			assert.NoError(t, s.Routed.Insert(ctx, model.SolvedOrder{OrderID: fmt.Sprint(i), RouteName: name, Sequence: 1, ArriveTime: day}))
			assert.NoError(t, s.Unrouted.Insert(ctx, model.UnroutedLead{Company: model.Company{ID: fmt.Sprintf("u%d", i)}, Reason: model.ReasonSolverReject}))
			assert.NoError(t, s.Routes.Insert(ctx, model.RouteSummary{RunID: "run1", Name: name, Day: day, Stops: 1}))
		}(i)
	}
	wg.Wait()

	routed, unrouted, routes := s.Counts()
	assert.Equal(t, 4, routed)
	assert.Equal(t, 4, unrouted)
	assert.Equal(t, 4, routes)

	got, err := st.ListRouted(ctx, "run1")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFeatureSink(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		var recs []featureserver.Record
		require.NoError(t, json.Unmarshal([]byte(r.Form.Get("features")), &recs))
		received.Add(int32(len(recs)))
		assert.Equal(t, "run1", recs[0].String("RUN_ID"))
		_, _ = w.Write([]byte(`{"addResults":[{"objectId":1,"success":true}]}`))
	}))
	defer srv.Close()

	p := resilience.FixedPolicy(1, 0)
	c := featureserver.NewClient(srv.URL, featureserver.WithRateLimit(1000), featureserver.WithWritePolicy(p))
	s := NewFeatureSink("run1", Layers{Routed: c, Unrouted: c, Routes: c})

	ctx := context.Background()
	require.NoError(t, s.Routed.Insert(ctx, model.SolvedOrder{OrderID: "a"}, model.SolvedOrder{OrderID: "b"}))
	require.NoError(t, s.Unrouted.Insert(ctx, model.UnroutedLead{Company: model.Company{ID: "c"}}))
	require.NoError(t, s.Routes.Insert(ctx, model.RouteSummary{RunID: "run1", Name: "r"}))
	assert.Equal(t, int32(4), received.Load())
}

func TestFeatureSink_RejectedEdits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"addResults":[{"success":false}]}`))
	}))
	defer srv.Close()

	c := featureserver.NewClient(srv.URL, featureserver.WithRateLimit(1000))
	s := NewFeatureSink("run1", Layers{Routed: c, Unrouted: c, Routes: c})
	err := s.Unrouted.Insert(context.Background(), model.UnroutedLead{})
	assert.Error(t, err)
}
