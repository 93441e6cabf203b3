package access

import "time"

// Scope is the restriction embedded in a DT grant: a date range plus
// optional person and site sets. An empty set means "no restriction on that
// axis".
type Scope struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	PersonIDs []string  `json:"personIds,omitempty"`
	SiteIDs   []string  `json:"siteIds,omitempty"`
}

func (s Scope) Validate() error {
	if s.From.IsZero() || s.To.IsZero() {
		return ErrBadScope
	}
	if s.To.Before(s.From) {
		return ErrBadScope
	}
	return nil
}

// Filters are caller-supplied narrowing parameters at redemption time. They
// are intersected with the embedded scope, never unioned: redemption can
// shrink a grant but never widen it.
type Filters struct {
	From      *time.Time
	To        *time.Time
	PersonIDs []string
	SiteIDs   []string
}

// Intersect applies filters to the scope and returns the narrowed scope.
func (s Scope) Intersect(f Filters) Scope {
	out := s
	if f.From != nil && f.From.After(out.From) {
		out.From = *f.From
	}
	if f.To != nil && f.To.Before(out.To) {
		out.To = *f.To
	}
	out.PersonIDs = intersectSets(s.PersonIDs, f.PersonIDs)
	out.SiteIDs = intersectSets(s.SiteIDs, f.SiteIDs)
	return out
}

// Empty reports whether the scope can match nothing, e.g. after a disjoint
// intersection.
func (s Scope) Empty() bool {
	return s.To.Before(s.From)
}

// intersectSets treats an empty set as unrestricted. When both sides
// restrict, only common members survive; a non-empty filter against a
// restricted scope can therefore only shrink it. Disjoint sets yield a
// sentinel that matches nothing.
func intersectSets(scoped, filter []string) []string {
	if len(filter) == 0 {
		return scoped
	}
	if len(scoped) == 0 {
		return filter
	}
	allowed := make(map[string]bool, len(scoped))
	for _, id := range scoped {
		allowed[id] = true
	}
	var out []string
	for _, id := range filter {
		if allowed[id] {
			out = append(out, id)
		}
	}
	if out == nil {
		return []string{noMatchSentinel}
	}
	return out
}

// noMatchSentinel is an id that cannot exist, used when an intersection is
// disjoint so the store query matches zero rows instead of falling back to
// "unrestricted".
const noMatchSentinel = "\x00none"
