package tracking_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldtrack/internal/store/sqlstore"
	"fieldtrack/internal/tracking"
)

const (
	ownerA = "64b7f0c2a1b2c3d4e5f6b001"
	ownerB = "64b7f0c2a1b2c3d4e5f6b002"
)

func newService(t *testing.T) *tracking.Service {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	ist, err := tracking.ParseOffset(tracking.DefaultDayOffset)
	require.NoError(t, err)
	return tracking.NewService(st, ist, zerolog.Nop())
}

func ping(t *testing.T, svc *tracking.Service, owner string, at time.Time, lat, lng float64) tracking.Sample {
	t.Helper()
	s, err := svc.RecordPing(context.Background(), owner, tracking.PingInput{Lat: lat, Lng: lng, CapturedAt: &at})
	require.NoError(t, err)
	return s
}

func TestDayRoute_ISTDay(t *testing.T) {
	svc := newService(t)
	ist := time.FixedZone("IST", 19800)
	ping(t, svc, ownerA, time.Date(2024, 3, 1, 10, 30, 0, 0, ist), 12.3, 77.3)
	ping(t, svc, ownerA, time.Date(2024, 3, 1, 8, 0, 0, 0, ist), 12.1, 77.1)
	ping(t, svc, ownerA, time.Date(2024, 3, 1, 9, 0, 0, 0, ist), 12.2, 77.2)
	// 23:59 IST on Feb 29 belongs to the previous day
	ping(t, svc, ownerA, time.Date(2024, 2, 29, 23, 59, 0, 0, ist), 12.0, 77.0)

	route, err := svc.DayRoute(context.Background(), tracking.RouteQuery{OwnerID: ownerA, Date: "2024-03-01"})
	require.NoError(t, err)
	assert.False(t, route.Fallback)
	assert.Equal(t, "2024-03-01", route.UsedDate)
	require.Len(t, route.Data, 3)
	assert.Equal(t, []float64{12.1, 12.2, 12.3}, []float64{route.Data[0].Lat, route.Data[1].Lat, route.Data[2].Lat})
	assert.Greater(t, route.DistanceMeters, 0.0)

	fallback, err := svc.DayRoute(context.Background(), tracking.RouteQuery{OwnerID: ownerA, Date: "2024-03-02"})
	require.NoError(t, err)
	assert.True(t, fallback.Fallback)
	assert.Equal(t, "2024-03-01", fallback.UsedDate)
	assert.Equal(t, route.Data, fallback.Data)
}

func TestDayRoute_UnknownOwner(t *testing.T) {
	svc := newService(t)
	route, err := svc.DayRoute(context.Background(), tracking.RouteQuery{OwnerID: ownerB, Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Empty(t, route.Data)
	assert.False(t, route.Fallback)
	assert.Equal(t, "2024-03-01", route.UsedDate)
	assert.NotEmpty(t, route.Message)
}

func TestListLatest_TwoOwnersOnePerPage(t *testing.T) {
	svc := newService(t)
	base := time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)
	ping(t, svc, ownerA, base, 1, 1)
	ping(t, svc, ownerB, base.Add(time.Minute), 2, 2)
	ping(t, svc, ownerA, base.Add(2*time.Minute), 3, 3)

	ctx := context.Background()
	p1, err := svc.ListLatest(ctx, tracking.ListQuery{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, tracking.PageMeta{Page: 1, Limit: 1, Total: 2, TotalPages: 2}, p1.Pagination)
	require.Len(t, p1.Data, 1)
	assert.Equal(t, ownerA, p1.Data[0].OwnerID)
	assert.Equal(t, 3.0, p1.Data[0].Lat)

	p2, err := svc.ListLatest(ctx, tracking.ListQuery{Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, p2.Data, 1)
	assert.Equal(t, ownerB, p2.Data[0].OwnerID)
	assert.Equal(t, ownerB, p2.Data[0].Employee.OwnerID)

	p3, err := svc.ListLatest(ctx, tracking.ListQuery{Page: 3, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, p3.Data)
	assert.Equal(t, 2, p3.Pagination.Total)
}

func TestListLatest_PagesPartitionRoster(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	owners := make(map[string]bool)
	for i := 0; i < 7; i++ {
		owner := fmt.Sprintf("64b7f0c2a1b2c3d4e5f6c%03d", i)
		owners[owner] = true
		// owners 0..2 share a timestamp so ordering falls back to owner id
		ping(t, svc, owner, base.Add(time.Duration(i/3)*time.Hour), float64(i), 0)
	}

	seen := make(map[string]bool)
	for page := 1; page <= 3; page++ {
		p, err := svc.ListLatest(ctx, tracking.ListQuery{Page: page, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, p.Pagination.Total)
		assert.Equal(t, 3, p.Pagination.TotalPages)
		for _, row := range p.Data {
			assert.False(t, seen[row.OwnerID], "owner %s on two pages", row.OwnerID)
			seen[row.OwnerID] = true
		}
	}
	assert.Equal(t, owners, seen)

	again, err := svc.ListLatest(ctx, tracking.ListQuery{Page: 2, Limit: 3})
	require.NoError(t, err)
	first, err := svc.ListLatest(ctx, tracking.ListQuery{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestListLatest_SearchUsesProfiles(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ping(t, svc, ownerA, now, 1, 1)
	ping(t, svc, ownerB, now, 2, 2)
	_, err := svc.SaveUser(ctx, tracking.UserProfile{ID: ownerA, Name: "Ravi Kumar", Email: "ravi@example.com", Phone: "+91 98450 11111"})
	require.NoError(t, err)

	p, err := svc.ListLatest(ctx, tracking.ListQuery{Search: "kumar"})
	require.NoError(t, err)
	require.Len(t, p.Data, 1)
	assert.Equal(t, "Ravi Kumar", p.Data[0].Employee.Name)
	assert.Equal(t, 1, p.Pagination.Total)

	p, err = svc.ListLatest(ctx, tracking.ListQuery{Search: "9845011111"})
	require.NoError(t, err)
	assert.Len(t, p.Data, 1)

	p, err = svc.ListLatest(ctx, tracking.ListQuery{Search: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, p.Data)
	assert.Equal(t, 1, p.Pagination.TotalPages)
}

func TestIDsAreCaseInsensitive(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	upper := strings.ToUpper(ownerA)
	ping(t, svc, upper, time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC), 12.9, 77.5)

	route, err := svc.DayRoute(ctx, tracking.RouteQuery{OwnerID: ownerA, Date: "2024-03-01"})
	require.NoError(t, err)
	require.Len(t, route.Data, 1)
	assert.Equal(t, ownerA, route.Data[0].OwnerID)

	route, err = svc.DayRoute(ctx, tracking.RouteQuery{OwnerID: upper, Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Len(t, route.Data, 1)

	saved, err := svc.SaveUser(ctx, tracking.UserProfile{ID: upper, Name: "Ravi"})
	require.NoError(t, err)
	assert.Equal(t, ownerA, saved.ID)

	page, err := svc.ListLatest(ctx, tracking.ListQuery{Search: "ravi"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, ownerA, page.Data[0].OwnerID)
}
