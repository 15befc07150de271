// Package model holds the plain domain types shared by the manager, general,
// and product roles.
package model

import "time"

// PageRange is an inclusive [Start,End] assignment of listing pages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages covered by the range, 0 if empty or invalid.
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Empty reports whether the range carries no pages.
func (r PageRange) Empty() bool {
	return r.Len() == 0
}

// Record is a single extracted listing item, matching the extraction
// contract: a 10-character alphanumeric primary identifier, a stable URL, a
// display title, the 1-based page it was found on, and optional pricing,
// rating, and image fields.
type Record struct {
	ID           string   `json:"id" gorm:"primaryKey;size:10"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	PageNumber   int      `json:"pageNumber" gorm:"index"`
	PriceMinor   *int64   `json:"priceMinor,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	RatingCount  *int     `json:"ratingCount,omitempty"`
	Images       []string `json:"images" gorm:"type:text[]"`
	UpdatedAt    time.Time
}

// EventStatus is the outcome recorded for a single extraction attempt.
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventFailed  EventStatus = "failed"
)

// AuditEvent is an append-only record of one record-level extraction
// attempt, per the persistence contract's recordEvent operation.
type AuditEvent struct {
	ID         uint        `json:"-" gorm:"primaryKey"`
	Identifier string      `json:"identifier,omitempty"`
	URL        string      `json:"url"`
	PageNumber int         `json:"pageNumber"`
	Status     EventStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Cookie mirrors the minimal subset of browser cookie fields the coordination
// layer persists and replays across workers.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// SessionState is the decoded form of session/cookies + session/valid.
type SessionState struct {
	Cookies []Cookie
	Valid   bool
}

// RotationState is the decoded form of rotation/index + rotation/lastAssignedPage.
type RotationState struct {
	Index            int
	LastAssignedPage int
}

// WorkerStatus classifies a worker by heartbeat freshness at the time a
// Manager or peer read it.
type WorkerStatus string

const (
	WorkerLive WorkerStatus = "live"
	WorkerDead WorkerStatus = "dead"
)
