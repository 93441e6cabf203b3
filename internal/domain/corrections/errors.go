package corrections

import "errors"

var (
	ErrRequestNotFound = errors.New("modification request not found")
	ErrAlreadyDecided  = errors.New("modification request already decided")
	ErrReasonRequired  = errors.New("a reason is required")
)
