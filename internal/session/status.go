package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
)

// statusHash SHA-256s an ASCII string and returns the 64-hex digest,
// the rule shared by every status kind in spec.md §4.4's table.
func statusHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hexTxHash(h [32]byte) string { return hex.EncodeToString(h[:]) }

// ScriptHashStatus derives the address/script status digest: for each
// (txhash, height) in db-order, "{hex(txhash)}:{height}:"; then for
// each mempool tx in mempool-iteration order,
// "{hex(txhash)}:{-has_unconfirmed_inputs}:" (spec.md §4.4 scripthash
// row). Returns ("", false, true) when there is no history and no
// mempool activity (null status).
func ScriptHashStatus(history []collaborators.TxEntry, mempool []collaborators.MempoolTx) (status string, fromMempool bool, isNull bool) {
	if len(history) == 0 && len(mempool) == 0 {
		return "", false, true
	}

	var b strings.Builder
	for _, e := range history {
		fmt.Fprintf(&b, "%s:%d:", hexTxHash(e.TxHash), e.Height)
	}
	for _, m := range mempool {
		sign := 0
		if m.HasUnconfirmedInputs {
			sign = -1
		}
		fmt.Fprintf(&b, "%s:%d:", hexTxHash(m.TxHash), sign)
	}
	return statusHash(b.String()), len(mempool) > 0, false
}

// boolStr renders Python-style True/False used throughout the
// original's status strings (spec.md §4.4 "standard decimal/True-False").
func boolStr(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// AssetStatus derives the asset metadata status digest:
// sats‖divisions‖reissuable‖has_ipfs[‖ipfs] (spec.md §4.4 asset row).
func AssetStatus(meta collaborators.AssetMeta, hasMeta bool) (status string, isNull bool) {
	if !hasMeta {
		return "", true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d%d%s%s", meta.Sats, meta.Divisions, boolStr(meta.Reissuable), boolStr(meta.HasIPFS))
	if meta.HasIPFS {
		b.WriteString(meta.IPFS)
	}
	return statusHash(b.String()), false
}

// QualificationStatus derives qualifier-tag and h160-tag status
// digests: entries sorted ascending by their natural key, joined with
// ";" as "{key}:{height}{txhash}{txpos}{flag}" (spec.md §4.4).
// sortByH160 selects qualifier-tag ordering (sort and join by h160);
// otherwise the h160-tag ordering is used (sort and join by asset,
// `tags_for_h160_status` in the original).
func QualificationStatus(entries []collaborators.QualificationEntry, sortByH160 bool) (status string, isNull bool) {
	if len(entries) == 0 {
		return "", true
	}
	sorted := append([]collaborators.QualificationEntry(nil), entries...)
	if sortByH160 {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].H160 < sorted[j].H160 })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Asset < sorted[j].Asset })
	}

	parts := make([]string, 0, len(sorted))
	for _, e := range sorted {
		key := e.H160
		if !sortByH160 {
			key = e.Asset
		}
		parts = append(parts, fmt.Sprintf("%s:%d%s%d%s",
			key, e.Height, hexTxHash(e.TxHash), e.TxPos, boolStr(e.Flag)))
	}
	return statusHash(strings.Join(parts, ";")), false
}

// BroadcastStatus derives asset-broadcast status digests: entries
// sorted by (height, txhash, txpos), joined with ";" as
// "{txhash}:{height}{txpos}{data}{expiration}" (spec.md §4.4).
func BroadcastStatus(entries []collaborators.BroadcastEntry) (status string, isNull bool) {
	if len(entries) == 0 {
		return "", true
	}
	sorted := append([]collaborators.BroadcastEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		ah, bh := hexTxHash(a.TxHash), hexTxHash(b.TxHash)
		if ah != bh {
			return ah < bh
		}
		return a.TxPos < b.TxPos
	})

	parts := make([]string, 0, len(sorted))
	for _, e := range sorted {
		parts = append(parts, fmt.Sprintf("%s:%d%d%s%d",
			hexTxHash(e.TxHash), e.Height, e.TxPos, e.Data, e.Expiration))
	}
	return statusHash(strings.Join(parts, ";")), false
}

// AssociationStatus derives qualifier-association status digests:
// entries sorted by restricted-asset name, joined with ";" as
// "{asset}:{height}{txhash}{restricted_tx_pos}{qualifying_tx_pos}{associated}"
// (spec.md §4.4).
func AssociationStatus(entries []collaborators.AssociationEntry) (status string, isNull bool) {
	if len(entries) == 0 {
		return "", true
	}
	sorted := append([]collaborators.AssociationEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Asset < sorted[j].Asset })

	parts := make([]string, 0, len(sorted))
	for _, e := range sorted {
		parts = append(parts, fmt.Sprintf("%s:%d%s%d%d%s",
			e.Asset, e.Height, hexTxHash(e.TxHash), e.RestrictedTxPos, e.QualifyingTxPos, boolStr(e.Associated)))
	}
	return statusHash(strings.Join(parts, ";")), false
}
