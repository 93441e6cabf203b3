package access

import "errors"

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
	ErrBadScope     = errors.New("invalid access scope")
	ErrTTLTooShort  = errors.New("ttl must be at least 5 minutes")
)
