// Package admin serves the roster and route reports to admin users.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"fieldtrack/internal/mw"
	"fieldtrack/internal/tracking"
)

type Handler struct {
	Tracking *tracking.Service
}

func NewHandler(svc *tracking.Service) *Handler {
	return &Handler{Tracking: svc}
}

// LatestLocations handles GET /admin/locations/latest?page=&limit=&q=
func (h *Handler) LatestLocations(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	page, err := h.Tracking.ListLatest(r.Context(), tracking.ListQuery{
		Page:   atoiOrZero(qs.Get("page")),
		Limit:  atoiOrZero(qs.Get("limit")),
		Search: qs.Get("q"),
	})
	if err != nil {
		mw.WriteError(w, r, err)
		return
	}
	mw.JSONResponse(w, http.StatusOK, page)
}

// DayRoute handles GET /admin/locations/day-route?userId=&date=YYYY-MM-DD
func (h *Handler) DayRoute(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	route, err := h.Tracking.DayRoute(r.Context(), tracking.RouteQuery{
		OwnerID: qs.Get("userId"),
		Date:    qs.Get("date"),
	})
	if err != nil {
		mw.WriteError(w, r, err)
		return
	}
	mw.JSONResponse(w, http.StatusOK, route)
}

type putUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// PutUser handles PUT /admin/users/{userId}
func (h *Handler) PutUser(w http.ResponseWriter, r *http.Request) {
	var req putUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, mw.MaxBodyBytes)).Decode(&req); err != nil {
		mw.ErrorResponse(w, http.StatusBadRequest, "bad json")
		return
	}
	saved, err := h.Tracking.SaveUser(r.Context(), tracking.UserProfile{
		ID:    mux.Vars(r)["userId"],
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  req.Role,
	})
	if err != nil {
		mw.WriteError(w, r, err)
		return
	}
	mw.JSONResponse(w, http.StatusOK, map[string]any{"data": saved})
}

// atoiOrZero treats a missing or malformed number as unset.
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
