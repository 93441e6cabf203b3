package corrections

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Request asks for a historical mark to be corrected. Approval never edits
// the target mark: it appends a new chained correction event, preserving the
// original row for audit.
type Request struct {
	ID              string     `json:"id"`
	MarkID          string     `json:"markId"`
	RequesterID     string     `json:"requesterId"`
	Reason          string     `json:"reason"`
	RequestedTS     time.Time  `json:"requestedTs"`
	RequestedSiteID *string    `json:"requestedSiteId,omitempty"`
	Status          string     `json:"status"`
	ReviewerID      *string    `json:"reviewerId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
}

// Filter narrows request listings.
type Filter struct {
	Status      string
	RequesterID string
}
