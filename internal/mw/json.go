package mw

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"fieldtrack/internal/tracking"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 1 << 16

// JSONResponse writes data as the JSON body with statusCode. data is encoded
// before the header goes out, so a value that cannot be encoded turns into a
// 500 error body instead of an empty response.
func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{
			Error:   http.StatusText(statusCode),
			Message: "internal error",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse writes {"error": <status text>, "message": message}.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	JSONResponse(w, statusCode, errorBody{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// WriteError maps err to a status: validation errors are 400 with their text,
// everything else is logged and answered with a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *tracking.ValidationError
	if errors.As(err, &verr) {
		ErrorResponse(w, http.StatusBadRequest, verr.Error())
		return
	}
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	ErrorResponse(w, http.StatusInternalServerError, "internal error")
}
