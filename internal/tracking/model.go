// internal/tracking/model.go
package tracking

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Sample sources.
const (
	SourceBrowser = "browser"
	SourceMobile  = "mobile"
	SourceGPS     = "gps"
	SourceUnknown = "unknown"
)

// Sample is one persisted location ping. Samples are never updated or deleted.
type Sample struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   *float64  `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewSample is what a store needs to append a sample. The store assigns ID and
// bookkeeping timestamps.
type NewSample struct {
	OwnerID    string
	Lat        float64
	Lng        float64
	Accuracy   *float64
	CapturedAt time.Time
	Source     string
}

// UserProfile is the slice of the user directory used for roster joins.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// Employee is the joined profile attached to a roster row. Only OwnerID is
// guaranteed; the other fields are empty when no profile exists.
type Employee struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// LatestLocation is one roster row: an owner's most recent sample.
type LatestLocation struct {
	OwnerID    string    `json:"ownerId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   *float64  `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
	Source     string    `json:"source"`
	Employee   Employee  `json:"employee"`
}

type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type LatestPage struct {
	Data       []LatestLocation `json:"data"`
	Pagination PageMeta         `json:"pagination"`
}

type DayRoute struct {
	Data           []Sample `json:"data"`
	UsedDate       string   `json:"usedDate"`
	Fallback       bool     `json:"fallback"`
	Message        string   `json:"message,omitempty"`
	DistanceMeters float64  `json:"distanceMeters"`
}

// RosterFilter selects a window of the latest-per-owner roster.
type RosterFilter struct {
	Search string
	Offset int
	Limit  int
}

// Store is the data-access handle. Implementations live under internal/store.
type Store interface {
	InsertSample(ctx context.Context, s NewSample) (Sample, error)
	// SamplesBetween returns the owner's samples with from <= capturedAt <= to,
	// ascending by capturedAt then insertion order.
	SamplesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]Sample, error)
	// MostRecentSample returns ErrNotFound when the owner has no samples.
	MostRecentSample(ctx context.Context, ownerID string) (Sample, error)
	LatestPerOwner(ctx context.Context, f RosterFilter) ([]LatestLocation, error)
	CountLatestPerOwner(ctx context.Context, search string) (int, error)
	UpsertUser(ctx context.Context, u UserProfile) error
	Close(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

var objectIDRe = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ValidID reports whether id has the 24-hex-digit form used for users and samples.
func ValidID(id string) bool {
	return objectIDRe.MatchString(id)
}

// CanonicalID lower-cases a hex id so every backend keys an owner the same way.
func CanonicalID(id string) string {
	return strings.ToLower(id)
}

// Timestamps outside four-digit years cannot be encoded as RFC 3339.
var (
	MinTimestamp = time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxTimestamp = time.Date(9999, 12, 31, 23, 59, 59, 999_000_000, time.UTC)
)

// InTimestampRange reports whether t can be stored and rendered as JSON.
func InTimestampRange(t time.Time) bool {
	return !t.Before(MinTimestamp) && !t.After(MaxTimestamp)
}

// PhoneDigits strips everything but ASCII digits.
func PhoneDigits(phone string) string {
	b := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			b = append(b, phone[i])
		}
	}
	return string(b)
}

// IsDigits reports whether s is non-empty and all ASCII digits.
func IsDigits(s string) bool {
	return s != "" && PhoneDigits(s) == s
}
