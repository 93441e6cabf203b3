package receipts

import "time"

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Item is one obligation to deliver a receipt email. The snapshot columns
// carry everything rendering needs so a retry never re-reads the mark.
type Item struct {
	ID            string     `json:"id"`
	MarkID        string     `json:"markId"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName"`
	Kind          string     `json:"kind"`
	EventTS       time.Time  `json:"eventTs"`
	SiteName      string     `json:"siteName"`
	SelfHash      string     `json:"selfHash"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	ErrorLog      *string    `json:"errorLog,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Snapshot is the denormalized payload captured at enqueue time.
type Snapshot struct {
	MarkID      string
	Email       string
	DisplayName string
	Kind        string
	EventTS     time.Time
	SiteName    string
	SelfHash    string
}

// Result summarizes one sweep pass.
type Result struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Eligible reports whether an item qualifies for (re)processing at the given
// instant: not yet sent, attempts not exhausted, and past the retry
// cooldown.
func Eligible(item Item, now time.Time, maxAttempts int, cooldown time.Duration) bool {
	if item.Status != StatusPending && item.Status != StatusFailed {
		return false
	}
	if item.Attempts >= maxAttempts {
		return false
	}
	if item.LastAttemptAt != nil && now.Sub(*item.LastAttemptAt) < cooldown {
		return false
	}
	return true
}
