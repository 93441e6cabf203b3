package ledger

import (
	"testing"
	"time"
)

func TestComputeSelfHashDeterministic(t *testing.T) {
	ts := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	site := "site-1"

	first := ComputeSelfHash("subject-1", KindIn, ts, &site, GenesisLink)
	second := ComputeSelfHash("subject-1", KindIn, ts, &site, GenesisLink)
	if first != second {
		t.Fatalf("hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256, got %q", first)
	}
}

func TestComputeSelfHashFieldSensitivity(t *testing.T) {
	ts := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	site := "site-1"
	base := ComputeSelfHash("subject-1", KindIn, ts, &site, GenesisLink)

	if got := ComputeSelfHash("subject-2", KindIn, ts, &site, GenesisLink); got == base {
		t.Fatal("subject change did not change hash")
	}
	if got := ComputeSelfHash("subject-1", KindOut, ts, &site, GenesisLink); got == base {
		t.Fatal("kind change did not change hash")
	}
	if got := ComputeSelfHash("subject-1", KindIn, ts.Add(time.Second), &site, GenesisLink); got == base {
		t.Fatal("timestamp change did not change hash")
	}
	if got := ComputeSelfHash("subject-1", KindIn, ts, nil, GenesisLink); got == base {
		t.Fatal("site change did not change hash")
	}
	if got := ComputeSelfHash("subject-1", KindIn, ts, &site, "deadbeef"); got == base {
		t.Fatal("chain link change did not change hash")
	}
}

func TestComputeSelfHashTimezoneNormalized(t *testing.T) {
	site := "site-1"
	loc := time.FixedZone("CLT", -4*60*60)
	local := time.Date(2025, 3, 10, 4, 30, 0, 0, loc)
	utc := local.UTC()

	if ComputeSelfHash("s", KindIn, local, &site, "") != ComputeSelfHash("s", KindIn, utc, &site, "") {
		t.Fatal("equal instants in different zones must hash equally")
	}
}
