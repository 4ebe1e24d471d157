// internal/ingest/handler.go
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"fieldtrack/internal/mw"
	"fieldtrack/internal/tracking"
)

// LivePositions receives accepted samples after they are persisted.
type LivePositions interface {
	UpdateLastPosition(ctx context.Context, ownerID string, lat, lng float64, at time.Time) error
	PublishSample(ctx context.Context, ownerID string, payload any) error
}

type Handler struct {
	Tracking *tracking.Service
	// Live may be nil when redis is not configured.
	Live LivePositions
}

func NewHandler(svc *tracking.Service, live LivePositions) *Handler {
	return &Handler{Tracking: svc, Live: live}
}

// Ingest handles POST /locations/ping.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	callerID := mw.UserID(r.Context())

	var p PingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, mw.MaxBodyBytes)).Decode(&p); err != nil {
		mw.ErrorResponse(w, http.StatusBadRequest, "bad json")
		return
	}
	in, err := p.Input()
	if err != nil {
		mw.WriteError(w, r, err)
		return
	}

	sample, err := h.Tracking.RecordPing(r.Context(), callerID, in)
	if err != nil {
		mw.WriteError(w, r, err)
		return
	}

	// the sample is durable at this point; live updates are best effort
	if h.Live != nil {
		log := hlog.FromRequest(r)
		if err := h.Live.UpdateLastPosition(r.Context(), sample.OwnerID, sample.Lat, sample.Lng, sample.CapturedAt); err != nil {
			log.Warn().Err(err).Str("owner_id", sample.OwnerID).Msg("live position update failed")
		}
		if err := h.Live.PublishSample(r.Context(), sample.OwnerID, sample); err != nil {
			log.Warn().Err(err).Str("owner_id", sample.OwnerID).Msg("live publish failed")
		}
	}

	mw.JSONResponse(w, http.StatusCreated, map[string]any{"data": sample})
}
