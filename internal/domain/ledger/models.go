package ledger

import "time"

type Kind string

const (
	KindIn         Kind = "in"
	KindOut        Kind = "out"
	KindCorrection Kind = "correction"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIn, KindOut, KindCorrection:
		return true
	}
	return false
}

// Mark is one attendance event. Rows are append-only: corrections are
// recorded as new chained marks, never as updates.
type Mark struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subjectId"`
	Kind           Kind      `json:"kind"`
	EventTS        time.Time `json:"eventTs"`
	SiteID         *string   `json:"siteId,omitempty"`
	ChainLink      string    `json:"chainLink"`
	SelfHash       string    `json:"selfHash"`
	CorrectsMarkID *string   `json:"correctsMarkId,omitempty"`
	ReceiptPath    *string   `json:"receiptPath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
