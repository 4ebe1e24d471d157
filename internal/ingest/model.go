package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"fieldtrack/internal/tracking"
)

// PingRequest is the body of POST /locations/ping. Fields stay raw so a
// quoted number ("12.9") is rejected instead of coerced. Any ownerId or
// source in the body is ignored.
type PingRequest struct {
	Lat        json.RawMessage `json:"lat"`
	Lng        json.RawMessage `json:"lng"`
	Accuracy   json.RawMessage `json:"accuracy"`
	CapturedAt json.RawMessage `json:"capturedAt"`
}

// Input validates the request. lat and lng must be JSON numbers; a
// non-numeric accuracy is dropped and an unusable capturedAt is left nil so
// the ingestion time is used.
func (p *PingRequest) Input() (tracking.PingInput, error) {
	var in tracking.PingInput
	var bad []string

	lat, ok := jsonNumber(p.Lat)
	if !ok {
		bad = append(bad, "lat")
	}
	lng, ok := jsonNumber(p.Lng)
	if !ok {
		bad = append(bad, "lng")
	}
	if len(bad) > 0 {
		return in, &tracking.ValidationError{Fields: bad, Reason: "lat and lng must be numbers"}
	}
	in.Lat, in.Lng = lat, lng

	if acc, ok := jsonNumber(p.Accuracy); ok {
		in.Accuracy = &acc
	}
	in.CapturedAt = parseCapturedAt(p.CapturedAt)
	return in, nil
}

func jsonNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseCapturedAt accepts an RFC 3339 string or epoch milliseconds. Instants
// outside years 0000-9999 are treated as unparseable.
func parseCapturedAt(raw json.RawMessage) *time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if ms, ok := jsonNumber(raw); ok {
		if ms < float64(tracking.MinTimestamp.UnixMilli()) || ms > float64(tracking.MaxTimestamp.UnixMilli()) {
			return nil
		}
		t := time.UnixMilli(int64(ms)).UTC()
		return &t
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || !tracking.InTimestampRange(t) {
		return nil
	}
	return &t
}
