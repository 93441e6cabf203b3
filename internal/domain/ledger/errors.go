package ledger

import "errors"

var (
	ErrOutOfOrderEvent = errors.New("event timestamp is earlier than the subject's latest mark")
	ErrInvalidKind     = errors.New("invalid event kind")
	ErrInvalidSubject  = errors.New("subject id is required")
	ErrMarkNotFound    = errors.New("mark not found")
)
