package collaborators

import (
	"context"
	"errors"
)

// Noop is a placeholder implementation of every collaborator
// interface, answering each call with a zero value or
// ErrNotImplemented. It exists only so cmd/sessiond can construct and
// run a Manager standalone; a real deployment embeds this session
// layer inside the indexer process, which supplies its own DB,
// Mempool, Daemon, BP, and PeerManager (spec.md §1 Non-goals).
type Noop struct {
	url string
	bp  chan struct{}
}

// NewNoop constructs a Noop collaborator set.
func NewNoop() *Noop {
	return &Noop{bp: make(chan struct{})}
}

var ErrNotImplemented = errors.New("collaborator not wired: see internal/collaborators.Noop")

func (n *Noop) StateHeight() int32         { return 0 }
func (n *Noop) HistoryFlushCount() int     { return 0 }

func (n *Noop) RawHeader(ctx context.Context, height int32) ([]byte, error) {
	return nil, ErrNotImplemented
}
func (n *Noop) ReadHeaders(ctx context.Context, start, count int32) ([]byte, error) {
	return nil, ErrNotImplemented
}
func (n *Noop) HeaderBranchAndRoot(ctx context.Context, height, cpHeight int32) ([][32]byte, [32]byte, error) {
	return nil, [32]byte{}, ErrNotImplemented
}
func (n *Noop) TxHashesAtBlockheight(ctx context.Context, height int32) ([][32]byte, error) {
	return nil, nil
}
func (n *Noop) LimitedHistory(ctx context.Context, hashX []byte, limit int) ([]TxEntry, error) {
	return nil, nil
}
func (n *Noop) AllUTXOs(ctx context.Context, hashX []byte, asset string) ([]UTXO, error) {
	return nil, nil
}
func (n *Noop) LookupAssetMeta(ctx context.Context, asset string) (AssetMeta, bool, error) {
	return AssetMeta{}, false, nil
}
func (n *Noop) LookupAssetMetaHistory(ctx context.Context, asset string) ([]AssetMeta, error) {
	return nil, nil
}
func (n *Noop) QualificationsForQualifier(ctx context.Context, asset string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) QualificationsForQualifierHistory(ctx context.Context, asset string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) QualificationsForH160(ctx context.Context, h160 string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) QualificationsForH160History(ctx context.Context, h160 string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) RestrictedFrozenHistory(ctx context.Context, asset string) ([]bool, error) {
	return nil, nil
}
func (n *Noop) IsRestrictedFrozen(ctx context.Context, asset string) (bool, error) { return false, nil }
func (n *Noop) GetRestrictedString(ctx context.Context, asset string) (string, bool, error) {
	return "", false, nil
}
func (n *Noop) GetRestrictedStringHistory(ctx context.Context, asset string) ([]string, error) {
	return nil, nil
}
func (n *Noop) LookupQualifierAssociations(ctx context.Context, asset string) ([]AssociationEntry, error) {
	return nil, nil
}
func (n *Noop) LookupQualifierAssociationsHistory(ctx context.Context, asset string) ([]AssociationEntry, error) {
	return nil, nil
}
func (n *Noop) GetAssetsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}
func (n *Noop) IsH160Qualified(ctx context.Context, h160, asset string) (bool, error) {
	return false, nil
}
func (n *Noop) LookupMessages(ctx context.Context, asset string) ([]BroadcastEntry, error) {
	return nil, nil
}
func (n *Noop) MerkleBranchAndRoot(ctx context.Context, txHashes [][32]byte, pos int) ([][32]byte, [32]byte, error) {
	return nil, [32]byte{}, ErrNotImplemented
}

func (n *Noop) TransactionSummaries(ctx context.Context, hashX []byte) ([]MempoolTx, error) {
	return nil, nil
}
func (n *Noop) UnorderedUTXOs(ctx context.Context, hashX []byte) ([]UTXO, error) { return nil, nil }
func (n *Noop) PotentialSpends(ctx context.Context, hashX []byte) (map[[32]byte]struct{}, error) {
	return nil, nil
}
func (n *Noop) BalanceDelta(ctx context.Context, hashX []byte) (int64, error) { return 0, nil }
func (n *Noop) GetAssetCreationIfAny(ctx context.Context, txHash [32]byte) (AssetMeta, bool, error) {
	return AssetMeta{}, false, nil
}
func (n *Noop) GetAssetReissuesIfAny(ctx context.Context, txHash [32]byte) (AssetMeta, bool, error) {
	return AssetMeta{}, false, nil
}
func (n *Noop) GetBroadcasts(ctx context.Context, asset string) ([]BroadcastEntry, error) {
	return nil, nil
}
func (n *Noop) GetH160Tags(ctx context.Context, h160 string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) GetQualifierTags(ctx context.Context, asset string) ([]QualificationEntry, error) {
	return nil, nil
}
func (n *Noop) IsFrozen(ctx context.Context, asset string) (bool, error) { return false, nil }
func (n *Noop) RestrictedVerifier(ctx context.Context, asset string) (string, bool, error) {
	return "", false, nil
}
func (n *Noop) RestrictedAssetsAssociatedWithQualifier(ctx context.Context, asset string) ([]AssociationEntry, error) {
	return nil, nil
}
func (n *Noop) CompactFeeHistogram(ctx context.Context) ([][2]float64, error) { return nil, nil }

func (n *Noop) GetRawTransaction(ctx context.Context, txHash [32]byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
func (n *Noop) GetNetworkInfo(ctx context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}
func (n *Noop) EstimateSmartFee(ctx context.Context, blocks int, mode string) (float64, bool, error) {
	return 0, false, nil
}
func (n *Noop) BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	return [32]byte{}, ErrNotImplemented
}
func (n *Noop) ListAddressesByAsset(ctx context.Context, asset string) ([]string, error) {
	return nil, nil
}
func (n *Noop) CachedHeight(ctx context.Context) (int32, error) { return 0, nil }
func (n *Noop) LoggedURL() string                               { return n.url }
func (n *Noop) SetURL(url string)                               { n.url = url }

func (n *Noop) StateTip() [32]byte                     { return [32]byte{} }
func (n *Noop) BackedUp() <-chan struct{}               { return n.bp }
func (n *Noop) ForceChainReorg(ctx context.Context, count int) error { return nil }

func (n *Noop) AddLocalRPCPeer(ctx context.Context, realName string) error { return nil }
func (n *Noop) OnAddPeer(ctx context.Context, features map[string]any, source string) (bool, error) {
	return true, nil
}
func (n *Noop) OnPeersSubscribe(isTor bool) []PeerInfo { return nil }
func (n *Noop) DiscoverPeers(ctx context.Context) error { return nil }
func (n *Noop) ProxyAddress() (string, bool)            { return "", false }
func (n *Noop) Info() map[string]any                    { return map[string]any{} }
func (n *Noop) RPCData() map[string]any                 { return map[string]any{} }
func (n *Noop) SendTopicUpdates(ctx context.Context, topic string, payload any) error { return nil }
