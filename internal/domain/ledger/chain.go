package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ChainVersion is baked into every hashed payload. Changing the canonical
// serialization below requires a new version constant, otherwise historical
// chains become unverifiable.
const ChainVersion = "v1"

// GenesisLink is the chain link of a subject's first mark.
const GenesisLink = ""

// canonicalPayload builds the exact byte sequence that gets hashed. Field
// order, the delimiter, and the timestamp encoding are all part of the chain
// format and must stay stable.
func canonicalPayload(subjectID string, kind Kind, eventTS time.Time, siteID *string, chainLink string) string {
	site := ""
	if siteID != nil {
		site = *siteID
	}
	return strings.Join([]string{
		ChainVersion,
		subjectID,
		string(kind),
		eventTS.UTC().Format(time.RFC3339Nano),
		site,
		chainLink,
	}, "|")
}

// ComputeSelfHash returns the hex-encoded SHA-256 of the canonical payload.
func ComputeSelfHash(subjectID string, kind Kind, eventTS time.Time, siteID *string, chainLink string) string {
	sum := sha256.Sum256([]byte(canonicalPayload(subjectID, kind, eventTS, siteID, chainLink)))
	return hex.EncodeToString(sum[:])
}

// Recompute returns what the mark's self hash should be given its stored
// fields, including its stored chain link.
func Recompute(m Mark) string {
	return ComputeSelfHash(m.SubjectID, m.Kind, m.EventTS, m.SiteID, m.ChainLink)
}
