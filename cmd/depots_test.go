package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/route-planner/internal/calendar"
	"github.com/sells-group/route-planner/internal/model"
)

func fixedWalker(now time.Time, nextDays int) *calendar.Walker {
	w := calendar.NewWalker(calendar.DefaultHolidays(), nextDays, 8, 0)
	w.Now = func() time.Time { return now }
	return w
}

// campinas returns 20 leads around west and 20 around east, all in the
// Campinas sub-area of T1.
func campinas(west, east model.Point) []model.Company {
	var out []model.Company
	for ci, c := range []model.Point{west, east} {
		for i := 0; i < 20; i++ {
			out = append(out, model.Company{
				ID:          fmt.Sprintf("c%d-%d", ci, i),
				TerritoryID: "T1",
				SubAreaKey:  "T1#CAMPINAS",
				Lon:         c.Lon + float64(i%5)*0.001,
				Lat:         c.Lat + float64(i/5)*0.001,
			})
		}
	}
	return out
}

func TestPlanDepots_SubAreaBindsAppointment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	west := model.Point{Lon: -46.0, Lat: -23.0}
	east := model.Point{Lon: -40.0, Lat: -23.0}
	companies := campinas(west, east)
	appt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	companies[0].AppointmentAt = &appt
	// Another municipality of the same territory stays out of the plan.
	companies = append(companies, model.Company{ID: "other", TerritoryID: "T1", SubAreaKey: "T1#SOROCABA", Lon: -47.4, Lat: -23.5})

	_, err := importCompanies(ctx, st, companies)
	require.NoError(t, err)

	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	plan, err := planDepots(ctx, st, fixedWalker(start, 1), "T1", "Campinas", &start)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Depots, 2)

	assert.Equal(t, "T1#CAMPINAS#20260310", plan.Depots[1].Name)
	assert.Less(t, plan.Depots[1].Centroid.Lon, -43.0, "appointment day snaps to the centroid near the appointment")
	assert.Greater(t, plan.Depots[0].Centroid.Lon, -43.0)

	stored, err := st.ListDepots(ctx, "T1#CAMPINAS")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPlanDepots_UnknownSubArea(t *testing.T) {
	st := newTestStore(t)
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	plan, err := planDepots(context.Background(), st, fixedWalker(start, 1), "T1", "Nowhere", &start)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestRouteDayStart_FollowsNextDays(t *testing.T) {
	cfg = testConfig(t)
	monday := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	d, err := routeDayStart(fixedWalker(monday, 1), "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), *d)

	d, err = routeDayStart(fixedWalker(monday, 2), "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), *d)

	// Saturday moves on to Monday.
	d, err = routeDayStart(fixedWalker(monday, 5), "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), *d)

	d, err = routeDayStart(fixedWalker(monday, 5), "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), *d)
}

func TestPlanDepots_NextDaysMovesFirstDay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := importCompanies(ctx, st, campinas(model.Point{Lon: -46, Lat: -23}, model.Point{Lon: -40, Lat: -23}))
	require.NoError(t, err)

	monday := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	for nextDays, want := range map[int]time.Time{
		1: time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		3: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
	} {
		w := fixedWalker(monday, nextDays)
		start, err := routeDayStart(w, "")
		require.NoError(t, err)

		plan, err := planDepots(ctx, st, w, "T1", "", start)
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, want, plan.Depots[0].Day, "next_days=%d", nextDays)
	}
}
