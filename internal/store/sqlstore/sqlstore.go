// Package sqlstore implements tracking.Store on postgres (lib/pq) or sqlite
// (modernc.org/sqlite) through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	_ "modernc.org/sqlite"

	"fieldtrack/internal/tracking"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var _ tracking.Store = (*Store)(nil)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects, verifies the connection and creates the schema.
func Open(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database on a single connection
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schemaFor(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info().Str("driver", driver).Msg("sql store ready")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

type sampleRow struct {
	Seq        int64           `db:"seq"`
	ID         string          `db:"id"`
	OwnerID    string          `db:"owner_id"`
	Latitude   float64         `db:"latitude"`
	Longitude  float64         `db:"longitude"`
	Accuracy   sql.NullFloat64 `db:"accuracy"`
	CapturedAt int64           `db:"captured_at"`
	Source     string          `db:"source"`
	CreatedAt  int64           `db:"created_at"`
	UpdatedAt  int64           `db:"updated_at"`
}

func (r sampleRow) toSample() tracking.Sample {
	return tracking.Sample{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Lat:        r.Latitude,
		Lng:        r.Longitude,
		Accuracy:   nullableFloat(r.Accuracy),
		CapturedAt: fromMillis(r.CapturedAt),
		Source:     r.Source,
		CreatedAt:  fromMillis(r.CreatedAt),
		UpdatedAt:  fromMillis(r.UpdatedAt),
	}
}

type latestRow struct {
	OwnerID    string          `db:"owner_id"`
	Latitude   float64         `db:"latitude"`
	Longitude  float64         `db:"longitude"`
	Accuracy   sql.NullFloat64 `db:"accuracy"`
	CapturedAt int64           `db:"captured_at"`
	Source     string          `db:"source"`
	Name       string          `db:"name"`
	Email      string          `db:"email"`
	Phone      string          `db:"phone"`
}

func (s *Store) InsertSample(ctx context.Context, in tracking.NewSample) (tracking.Sample, error) {
	now := time.Now().UTC()
	row := sampleRow{
		ID:         primitive.NewObjectID().Hex(),
		OwnerID:    in.OwnerID,
		Latitude:   in.Lat,
		Longitude:  in.Lng,
		CapturedAt: toMillis(in.CapturedAt),
		Source:     in.Source,
		CreatedAt:  toMillis(now),
		UpdatedAt:  toMillis(now),
	}
	if in.Accuracy != nil {
		row.Accuracy = sql.NullFloat64{Float64: *in.Accuracy, Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO location_samples (id, owner_id, latitude, longitude, accuracy, captured_at, source, created_at, updated_at)
		VALUES (:id, :owner_id, :latitude, :longitude, :accuracy, :captured_at, :source, :created_at, :updated_at)
	`, row)
	if err != nil {
		return tracking.Sample{}, err
	}
	return row.toSample(), nil
}

func (s *Store) SamplesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]tracking.Sample, error) {
	var rows []sampleRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT seq, id, owner_id, latitude, longitude, accuracy, captured_at, source, created_at, updated_at
		FROM location_samples
		WHERE owner_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at ASC, seq ASC
	`), ownerID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	out := make([]tracking.Sample, len(rows))
	for i, r := range rows {
		out[i] = r.toSample()
	}
	return out, nil
}

func (s *Store) MostRecentSample(ctx context.Context, ownerID string) (tracking.Sample, error) {
	var row sampleRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT seq, id, owner_id, latitude, longitude, accuracy, captured_at, source, created_at, updated_at
		FROM location_samples
		WHERE owner_id = ?
		ORDER BY captured_at DESC, seq DESC
		LIMIT 1
	`), ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Sample{}, tracking.ErrNotFound
	}
	if err != nil {
		return tracking.Sample{}, err
	}
	return row.toSample(), nil
}

// latestCTE keeps the newest sample per owner; ties on captured_at go to the
// later insert.
const latestCTE = `
	WITH ranked AS (
		SELECT owner_id, latitude, longitude, accuracy, captured_at, source,
			ROW_NUMBER() OVER (PARTITION BY owner_id ORDER BY captured_at DESC, seq DESC) AS rn
		FROM location_samples
	), latest AS (
		SELECT owner_id, latitude, longitude, accuracy, captured_at, source
		FROM ranked
		WHERE rn = 1
	)
`

func (s *Store) LatestPerOwner(ctx context.Context, f tracking.RosterFilter) ([]tracking.LatestLocation, error) {
	where, args := searchClause(f.Search)
	args = append(args, f.Limit, f.Offset)

	var rows []latestRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(latestCTE+`
		SELECT l.owner_id, l.latitude, l.longitude, l.accuracy, l.captured_at, l.source,
			COALESCE(u.name, '') AS name, COALESCE(u.email, '') AS email, COALESCE(u.phone, '') AS phone
		FROM latest l
		LEFT JOIN users u ON u.id = l.owner_id
		`+where+`
		ORDER BY l.captured_at DESC, l.owner_id ASC
		LIMIT ? OFFSET ?
	`), args...)
	if err != nil {
		return nil, err
	}

	out := make([]tracking.LatestLocation, len(rows))
	for i, r := range rows {
		out[i] = tracking.LatestLocation{
			OwnerID:    r.OwnerID,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			Accuracy:   nullableFloat(r.Accuracy),
			CapturedAt: fromMillis(r.CapturedAt),
			Source:     r.Source,
			Employee: tracking.Employee{
				OwnerID: r.OwnerID,
				Name:    r.Name,
				Email:   r.Email,
				Phone:   r.Phone,
			},
		}
	}
	return out, nil
}

func (s *Store) CountLatestPerOwner(ctx context.Context, search string) (int, error) {
	where, args := searchClause(search)
	var total int
	err := s.db.GetContext(ctx, &total, s.db.Rebind(latestCTE+`
		SELECT COUNT(*)
		FROM latest l
		LEFT JOIN users u ON u.id = l.owner_id
		`+where), args...)
	return total, err
}

func (s *Store) UpsertUser(ctx context.Context, u tracking.UserProfile) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (id, name, email, phone, phone_digits, name_fold, email_fold, phone_fold, role, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			phone_digits = excluded.phone_digits,
			name_fold = excluded.name_fold,
			email_fold = excluded.email_fold,
			phone_fold = excluded.phone_fold,
			role = excluded.role,
			updated_at = excluded.updated_at
	`), u.ID, u.Name, u.Email, u.Phone, tracking.PhoneDigits(u.Phone),
		strings.ToLower(u.Name), strings.ToLower(u.Email), strings.ToLower(u.Phone),
		u.Role, toMillis(time.Now()))
	return err
}

// searchClause matches name, email or phone case-insensitively; an all-digit
// search also matches the phone's bare digits.
func searchClause(search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
	conds := []string{
		`u.name_fold LIKE ? ESCAPE '\'`,
		`u.email_fold LIKE ? ESCAPE '\'`,
		`u.phone_fold LIKE ? ESCAPE '\'`,
	}
	args := []any{pattern, pattern, pattern}
	if tracking.IsDigits(search) {
		conds = append(conds, `u.phone_digits LIKE ? ESCAPE '\'`)
		args = append(args, pattern)
	}
	return "WHERE (" + strings.Join(conds, " OR ") + ")", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
