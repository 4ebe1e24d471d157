// internal/tracking/service.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fieldtrack/internal/geo"
)

// PingInput is an already-decoded ping. Accuracy and CapturedAt are nil when
// the client did not send a usable value.
type PingInput struct {
	Lat        float64
	Lng        float64
	Accuracy   *float64
	CapturedAt *time.Time
}

// RouteQuery is the typed form of a day-route request.
type RouteQuery struct {
	OwnerID string
	Date    string
}

const noDataMessage = "no location data for this user"

type Service struct {
	store  Store
	dayLoc *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, dayLoc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		dayLoc: dayLoc,
		logger: logger.With().Str("component", "tracking").Logger(),
		now:    time.Now,
	}
}

// RecordPing appends one sample owned by callerID. The owner always comes from
// the authenticated caller.
func (s *Service) RecordPing(ctx context.Context, callerID string, in PingInput) (Sample, error) {
	if !ValidID(callerID) {
		return Sample{}, invalid("malformed user id", "ownerId")
	}
	callerID = CanonicalID(callerID)
	var bad []string
	if math.IsNaN(in.Lat) || math.Abs(in.Lat) > 90 {
		bad = append(bad, "lat")
	}
	if math.IsNaN(in.Lng) || math.Abs(in.Lng) > 180 {
		bad = append(bad, "lng")
	}
	if len(bad) > 0 {
		return Sample{}, invalid("out of range", bad...)
	}

	capturedAt := s.now().UTC()
	if in.CapturedAt != nil && !in.CapturedAt.IsZero() && InTimestampRange(*in.CapturedAt) {
		capturedAt = in.CapturedAt.UTC()
	}

	sample, err := s.store.InsertSample(ctx, NewSample{
		OwnerID:    callerID,
		Lat:        in.Lat,
		Lng:        in.Lng,
		Accuracy:   in.Accuracy,
		CapturedAt: capturedAt,
		Source:     SourceBrowser,
	})
	if err != nil {
		return Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	return sample, nil
}

// ListLatest returns one page of the latest-per-owner roster. The page and the
// total are fetched concurrently.
func (s *Service) ListLatest(ctx context.Context, q ListQuery) (LatestPage, error) {
	q = q.Normalize()
	search := strings.TrimSpace(q.Search)

	var (
		rows  []LatestLocation
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.store.LatestPerOwner(gctx, RosterFilter{Search: search, Offset: q.Offset(), Limit: q.Limit})
		if err != nil {
			return fmt.Errorf("latest per owner: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountLatestPerOwner(gctx, search)
		if err != nil {
			return fmt.Errorf("count latest per owner: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return LatestPage{}, err
	}

	if rows == nil {
		rows = []LatestLocation{}
	}
	return LatestPage{
		Data: rows,
		Pagination: PageMeta{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: TotalPages(total, q.Limit),
		},
	}, nil
}

// DayRoute returns the owner's samples for one civil day. When that day is
// empty it falls back to the day of the owner's most recent sample.
func (s *Service) DayRoute(ctx context.Context, q RouteQuery) (DayRoute, error) {
	var bad []string
	if !ValidID(q.OwnerID) {
		bad = append(bad, "userId")
	}
	if _, err := time.ParseInLocation(dateLayout, q.Date, s.dayLoc); err != nil {
		bad = append(bad, "date")
	}
	if len(bad) > 0 {
		return DayRoute{}, invalid("userId must be a 24 hex digit id and date must be YYYY-MM-DD", bad...)
	}
	q.OwnerID = CanonicalID(q.OwnerID)

	samples, err := s.samplesOn(ctx, q.OwnerID, q.Date)
	if err != nil {
		return DayRoute{}, err
	}
	if len(samples) > 0 {
		return newDayRoute(samples, q.Date, false), nil
	}

	last, err := s.store.MostRecentSample(ctx, q.OwnerID)
	if errors.Is(err, ErrNotFound) {
		return DayRoute{Data: []Sample{}, UsedDate: q.Date, Message: noDataMessage}, nil
	}
	if err != nil {
		return DayRoute{}, fmt.Errorf("most recent sample: %w", err)
	}

	used := CivilDate(last.CapturedAt, s.dayLoc)
	samples, err = s.samplesOn(ctx, q.OwnerID, used)
	if err != nil {
		return DayRoute{}, err
	}
	s.logger.Debug().
		Str("owner_id", q.OwnerID).
		Str("requested", q.Date).
		Str("used", used).
		Msg("day route fell back to last day with data")
	return newDayRoute(samples, used, true), nil
}

// SaveUser upserts a profile used by roster joins.
func (s *Service) SaveUser(ctx context.Context, u UserProfile) (UserProfile, error) {
	if !ValidID(u.ID) {
		return UserProfile{}, invalid("malformed user id", "userId")
	}
	u.ID = CanonicalID(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	u.Phone = strings.TrimSpace(u.Phone)
	if u.Name == "" && u.Email == "" {
		return UserProfile{}, invalid("name or email is required", "name", "email")
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return UserProfile{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *Service) samplesOn(ctx context.Context, ownerID, date string) ([]Sample, error) {
	from, to, err := DayWindow(date, s.dayLoc)
	if err != nil {
		return nil, invalid("date must be YYYY-MM-DD", "date")
	}
	samples, err := s.store.SamplesBetween(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("samples between: %w", err)
	}
	return samples, nil
}

func newDayRoute(samples []Sample, used string, fallback bool) DayRoute {
	pts := make([]geo.Point, len(samples))
	for i, s := range samples {
		pts[i] = geo.Point{Lat: s.Lat, Lng: s.Lng}
	}
	return DayRoute{
		Data:           samples,
		UsedDate:       used,
		Fallback:       fallback,
		DistanceMeters: geo.PathLength(pts),
	}
}
