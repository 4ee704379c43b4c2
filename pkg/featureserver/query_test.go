package featureserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/resilience"
)

func TestGetRecords_PagesUntilEmpty(t *testing.T) {
	const total = 5
	var offsets []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "json", r.Form.Get("f"))
		assert.Equal(t, "secret", r.Form.Get("token"))
		assert.Equal(t, "CARTEIRA = 'T1'", r.Form.Get("where"))
		assert.Equal(t, "ID,PRIORIDADE", r.Form.Get("outFields"))
		assert.Equal(t, "true", r.Form.Get("returnGeometry"))
		assert.Equal(t, "ID ASC", r.Form.Get("orderByFields"))
		assert.Equal(t, "2", r.Form.Get("resultRecordCount"))

		offset, _ := strconv.Atoi(r.Form.Get("resultOffset"))
		offsets = append(offsets, offset)

		var features []Record
		for i := offset; i < offset+2 && i < total; i++ {
			features = append(features, Record{
				Attributes: map[string]any{"ID": fmt.Sprintf("c%d", i)},
				Geometry:   &Geometry{X: -46.6, Y: -23.5},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"features": features})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithToken("secret"), WithPageSize(2))
	recs, err := c.GetRecords(context.Background(), Query{
		Where:          "CARTEIRA = 'T1'",
		OutFields:      []string{"ID", "PRIORIDADE"},
		ReturnGeometry: true,
		OrderBy:        "ID ASC",
	})
	require.NoError(t, err)
	require.Len(t, recs, total)
	assert.Equal(t, "c0", recs[0].String("ID"))
	assert.Equal(t, "c4", recs[4].String("ID"))
	assert.Equal(t, []int{0, 2, 4, 5}, offsets)
}

func TestGetRecords_ServerCapsPageSize(t *testing.T) {
	const (
		total     = 7
		serverMax = 3
	)
	var offsets []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5", r.Form.Get("resultRecordCount"))
		offset, _ := strconv.Atoi(r.Form.Get("resultOffset"))
		offsets = append(offsets, offset)

		var features []Record
		for i := offset; i < offset+serverMax && i < total; i++ {
			features = append(features, Record{Attributes: map[string]any{"ID": fmt.Sprintf("c%d", i)}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"features": features})
	}))
	defer srv.Close()

	recs, err := newTestClient(srv.URL, WithPageSize(5)).GetRecords(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, recs, total)
	for i, r := range recs {
		assert.Equal(t, fmt.Sprintf("c%d", i), r.String("ID"))
	}
	assert.Equal(t, []int{0, 3, 6, 7}, offsets)
}

func TestGetRecords_DefaultsAndDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1=1", r.Form.Get("where"))
		assert.Equal(t, "*", r.Form.Get("outFields"))
		assert.Equal(t, "true", r.Form.Get("returnDistinctValues"))
		assert.Equal(t, "false", r.Form.Get("returnGeometry"))
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv.URL).GetRecords(context.Background(), Query{Distinct: true})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetRecords_RetriesTransientPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, r.ParseForm())
		if r.Form.Get("resultOffset") == "0" {
			_, _ = w.Write([]byte(`{"features": [{"attributes": {"ID": "a"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv.URL).GetRecords(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetRecords_EmbeddedErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "Invalid where clause"}}`))
	}))
	defer srv.Close()

	p := testPolicy(3)
	p.ShouldRetry = resilience.IsTransient
	c := NewClient(srv.URL, WithRateLimit(1000), WithReadPolicy(p))

	_, err := c.GetRecords(context.Background(), Query{Where: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid where clause")
	assert.Equal(t, int32(1), calls.Load())
}
