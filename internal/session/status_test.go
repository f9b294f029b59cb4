package session

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
)

// Scenario C (spec.md §8): scripthash with history [(0x11..11, 100)]
// and no mempool -> status = SHA256("1111...11:100:") hex. Empty
// history and empty mempool -> null.
func TestScriptHashStatusScenarioC(t *testing.T) {
	var h32 [32]byte
	for i := range h32 {
		h32[i] = 0x11
	}

	history := []collaborators.TxEntry{{TxHash: h32, Height: 100}}
	status, fromMempool, isNull := ScriptHashStatus(history, nil)
	if isNull {
		t.Fatal("expected non-null status")
	}
	if fromMempool {
		t.Fatal("expected fromMempool=false with no mempool activity")
	}

	expectedInput := hex.EncodeToString(h32[:]) + ":100:"
	sum := sha256.Sum256([]byte(expectedInput))
	want := hex.EncodeToString(sum[:])
	if status != want {
		t.Fatalf("status = %s, want %s", status, want)
	}
}

func TestScriptHashStatusNullOnEmpty(t *testing.T) {
	_, _, isNull := ScriptHashStatus(nil, nil)
	if !isNull {
		t.Fatal("expected null status for empty history and mempool")
	}
}

// Invariant #3: determinism — identical inputs produce a byte-identical
// digest every time.
func TestStatusHashDeterministic(t *testing.T) {
	var h32 [32]byte
	for i := range h32 {
		h32[i] = byte(i)
	}
	history := []collaborators.TxEntry{{TxHash: h32, Height: 42}}
	s1, _, _ := ScriptHashStatus(history, nil)
	s2, _, _ := ScriptHashStatus(history, nil)
	if s1 != s2 {
		t.Fatalf("status hash not deterministic: %s != %s", s1, s2)
	}
}

func TestAssetStatusNullWhenNoMeta(t *testing.T) {
	_, isNull := AssetStatus(collaborators.AssetMeta{}, false)
	if !isNull {
		t.Fatal("expected null status when asset has no meta")
	}
}

func TestAssetStatusIncludesIPFSOnlyWhenPresent(t *testing.T) {
	withIPFS, _ := AssetStatus(collaborators.AssetMeta{Sats: 1, Divisions: 0, Reissuable: true, HasIPFS: true, IPFS: "Qm123"}, true)
	withoutIPFS, _ := AssetStatus(collaborators.AssetMeta{Sats: 1, Divisions: 0, Reissuable: true, HasIPFS: false}, true)
	if withIPFS == withoutIPFS {
		t.Fatal("expected different digests when has_ipfs differs")
	}
}

func TestQualificationStatusSortedByH160(t *testing.T) {
	entries := []collaborators.QualificationEntry{
		{H160: "bbbb", Height: 2, Flag: true},
		{H160: "aaaa", Height: 1, Flag: false},
	}
	sorted := append([]collaborators.QualificationEntry(nil), entries...)
	sorted[0], sorted[1] = sorted[1], sorted[0]

	a, _ := QualificationStatus(entries, true)
	b, _ := QualificationStatus(sorted, true)
	if a != b {
		t.Fatal("expected stable status regardless of input order when sorting by h160")
	}
}

// h160-tag status (sortByH160==false) sorts and joins on Asset, not
// H160 (spec.md §4.4, original's tags_for_h160_status).
func TestQualificationStatusSortedByAssetForH160Tags(t *testing.T) {
	entries := []collaborators.QualificationEntry{
		{H160: "same-h160", Asset: "ZEBRA", Height: 2, Flag: true},
		{H160: "same-h160", Asset: "APPLE", Height: 1, Flag: false},
	}
	sorted := append([]collaborators.QualificationEntry(nil), entries...)
	sorted[0], sorted[1] = sorted[1], sorted[0]

	a, _ := QualificationStatus(entries, false)
	b, _ := QualificationStatus(sorted, false)
	if a != b {
		t.Fatal("expected stable status regardless of input order when sorting by asset")
	}

	// Changing H160 alone (same Asset/Height/Flag) must not change the
	// digest, since h160-tag status keys on Asset, not H160.
	withDifferentH160 := []collaborators.QualificationEntry{
		{H160: "other-h160", Asset: "APPLE", Height: 1, Flag: false},
		{H160: "other-h160", Asset: "ZEBRA", Height: 2, Flag: true},
	}
	c, _ := QualificationStatus(withDifferentH160, false)
	if a != c {
		t.Fatal("expected h160-tag status to key on Asset, not H160")
	}
}

func TestBroadcastStatusOrdering(t *testing.T) {
	var h1, h2 [32]byte
	h1[0], h2[0] = 1, 2
	entries := []collaborators.BroadcastEntry{
		{Height: 2, TxHash: h2, TxPos: 0, Data: "y", Expiration: 1},
		{Height: 1, TxHash: h1, TxPos: 0, Data: "x", Expiration: 1},
	}
	reversed := []collaborators.BroadcastEntry{entries[1], entries[0]}
	a, _ := BroadcastStatus(entries)
	b, _ := BroadcastStatus(reversed)
	if a != b {
		t.Fatal("expected order-independent status via internal sort")
	}
}
