package model

// Status values used by the moderation queues.
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
	StatusRejected = "rejected"
	StatusTemplate = "template"
)

// GeoPoint is a map location attached to an event.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event is the stored event record. Start and End are kept as the strings
// they were authored with (ISO-8601, with or without a UTC offset); the
// calendar package turns them into instants in a display zone.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"` // YYYY-MM-DD
	Status      string `json:"status"`
	Organizer   string `json:"organizer"`
	Description string `json:"description"`

	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Visibility    string    `json:"visibility,omitempty"`
	SelectedClub  string    `json:"selectedClub,omitempty"`
	SelectedGroup string    `json:"selectedGroup,omitempty"`
	Location      *GeoPoint `json:"location,omitempty"`

	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// RRule is an opaque recurrence rule; it is stored, never expanded.
	RRule string `json:"rrule,omitempty"`

	// TimeZone is the IANA zone Start/End were authored in. Empty means
	// "same as whatever zone the viewer displays in".
	TimeZone string `json:"timezone,omitempty"`

	Creator     string `json:"creator,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	ReportCount int    `json:"reportCount,omitempty"`
	Flagged     bool   `json:"flagged,omitempty"`

	// SourceID marks events imported from an ICS feed.
	SourceID string `json:"sourceId,omitempty"`
}
