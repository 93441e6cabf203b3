package access

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinTTL is the shortest grant lifetime an admin may mint.
const MinTTL = 5 * time.Minute

type grantClaims struct {
	ScopeFrom string   `json:"sf"`
	ScopeTo   string   `json:"st"`
	PersonIDs []string `json:"pids,omitempty"`
	SiteIDs   []string `json:"sids,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed, self-contained capability embedding the scope
// and an absolute expiry. No server-side state is kept: expiry is the only
// invalidation mechanism.
func IssueToken(secret string, scope Scope, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if err := scope.Validate(); err != nil {
		return "", time.Time{}, err
	}
	if ttl < MinTTL {
		return "", time.Time{}, ErrTTLTooShort
	}

	expiry := now.Add(ttl)
	claims := grantClaims{
		ScopeFrom: scope.From.UTC().Format(time.RFC3339),
		ScopeTo:   scope.To.UTC().Format(time.RFC3339),
		PersonIDs: scope.PersonIDs,
		SiteIDs:   scope.SiteIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dt-access",
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiry, nil
}

// ParseToken verifies the signature and expiry and returns the embedded
// scope. Expired and invalid tokens are distinguishable errors so logs can
// tell them apart even though the HTTP surface returns 403 for both.
func ParseToken(secret, tokenString string) (Scope, error) {
	token, err := jwt.ParseWithClaims(tokenString, &grantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Scope{}, ErrTokenExpired
		}
		return Scope{}, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*grantClaims)
	if !ok || !token.Valid {
		return Scope{}, ErrTokenInvalid
	}

	from, err := time.Parse(time.RFC3339, claims.ScopeFrom)
	if err != nil {
		return Scope{}, ErrTokenInvalid
	}
	to, err := time.Parse(time.RFC3339, claims.ScopeTo)
	if err != nil {
		return Scope{}, ErrTokenInvalid
	}
	return Scope{From: from, To: to, PersonIDs: claims.PersonIDs, SiteIDs: claims.SiteIDs}, nil
}
