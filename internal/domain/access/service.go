package access

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"asistencia/internal/domain/ledger"
)

// MarksReader is the read-only slice of the ledger a grant can see.
type MarksReader interface {
	ListScoped(ctx context.Context, from, to time.Time, subjectIDs, siteIDs []string) ([]ledger.Mark, error)
}

type Grant struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	secret  string
	baseURL string
	marks   MarksReader
	now     func() time.Time
}

func NewService(secret, baseURL string, marks MarksReader) *Service {
	return &Service{secret: secret, baseURL: baseURL, marks: marks, now: time.Now}
}

// Issue mints a grant and the shareable URL an auditor uses to pull data.
func (s *Service) Issue(scope Scope, ttl time.Duration) (Grant, error) {
	token, expiry, err := IssueToken(s.secret, scope, ttl, s.now())
	if err != nil {
		return Grant{}, err
	}

	shareURL := fmt.Sprintf("%s/api/v1/admin/attendance/dt/access?token=%s&expires=%s",
		s.baseURL, url.QueryEscape(token), url.QueryEscape(expiry.UTC().Format(time.RFC3339)))
	return Grant{Token: token, URL: shareURL, ExpiresAt: expiry}, nil
}

// Redeem verifies the token and returns the marks its scope covers,
// narrowed by whatever filters the caller supplied. Only the signed claims
// decide what is visible; the expires query parameter on the share URL is
// display-only.
func (s *Service) Redeem(ctx context.Context, token string, filters Filters) ([]ledger.Mark, error) {
	scope, err := ParseToken(s.secret, token)
	if err != nil {
		return nil, err
	}

	effective := scope.Intersect(filters)
	if effective.Empty() {
		return []ledger.Mark{}, nil
	}
	marks, err := s.marks.ListScoped(ctx, effective.From, effective.To, effective.PersonIDs, effective.SiteIDs)
	if err != nil {
		return nil, err
	}
	if marks == nil {
		marks = []ledger.Mark{}
	}
	return marks, nil
}
