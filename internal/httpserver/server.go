// internal/httpserver/server.go
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"fieldtrack/internal/admin"
	"fieldtrack/internal/config"
	"fieldtrack/internal/ingest"
	"fieldtrack/internal/mw"
	"fieldtrack/internal/store"
	"fieldtrack/internal/store/mongostore"
	"fieldtrack/internal/store/sqlstore"
	"fieldtrack/internal/tracking"
)

// Deps is everything the router needs. Live and Limiter are nil when redis is
// not configured.
type Deps struct {
	Tracking  *tracking.Service
	Live      ingest.LivePositions
	Limiter   *mw.RateLimiter
	JWTSecret string
	Logger    zerolog.Logger
}

func NewRouter(d Deps) *mux.Router {
	hdl := ingest.NewHandler(d.Tracking, d.Live)
	adm := admin.NewHandler(d.Tracking)
	auth := mw.AuthMiddleware(d.JWTSecret)

	r := mux.NewRouter()
	r.Use(mw.Logging(d.Logger))

	loc := r.PathPrefix("/locations").Subrouter()
	loc.Use(auth)
	if d.Limiter != nil {
		loc.Use(d.Limiter.Middleware)
	}
	loc.HandleFunc("/ping", hdl.Ingest).Methods(http.MethodPost)

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(auth, mw.RequireRole(mw.RoleAdmin))
	adminRouter.HandleFunc("/locations/latest", adm.LatestLocations).Methods(http.MethodGet)
	adminRouter.HandleFunc("/locations/day-route", adm.DayRoute).Methods(http.MethodGet)
	adminRouter.HandleFunc("/users/{userId}", adm.PutUser).Methods(http.MethodPut)

	// health
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mw.ErrorResponse(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mw.ErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// OpenStore opens the database backend named by cfg.Database.Driver.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (tracking.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch cfg.Database.Driver {
	case config.DriverMongo:
		st, err := mongostore.Open(ctx, cfg.Database.URL, cfg.Database.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverPostgres, config.DriverSQLite:
		st, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// Start runs the server until ctx is cancelled, then drains in-flight requests.
func Start(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()

	deps := Deps{
		Tracking:  tracking.NewService(st, cfg.DayLocation(), logger),
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    logger,
	}
	if cfg.Redis.Addr != "" {
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			LastPositionTTL: cfg.Redis.LastPositionTTL,
		})
		if err != nil {
			return err
		}
		defer rs.Close()
		deps.Live = rs
		deps.Limiter = mw.NewRateLimiter(rs.Rdb, cfg.Redis.RateLimitRPS, cfg.Redis.RateLimitBurst, logger)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set: rate limiting and live positions disabled")
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      NewRouter(deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.Database.Driver).Msg("fieldtrack listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
