// Package collaborators defines the external interfaces this repo
// consumes but does not implement: the indexed database, the mempool
// index, the daemon RPC client, the block processor, and peer
// discovery (spec.md §1 Non-goals, §6 Persisted state).
package collaborators

import "context"

// DBError wraps a failure from the DB collaborator.
type DBError struct{ Err error }

func (e *DBError) Error() string { return "db error: " + e.Err.Error() }
func (e *DBError) Unwrap() error { return e.Err }

// DaemonError wraps a failure from the daemon RPC collaborator.
type DaemonError struct{ Err error }

func (e *DaemonError) Error() string { return "daemon error: " + e.Err.Error() }
func (e *DaemonError) Unwrap() error { return e.Err }

// TxEntry is a single (tx hash, height) history record.
type TxEntry struct {
	TxHash [32]byte
	Height int32
}

// AssetMeta describes an asset's on-chain metadata, used to derive
// asset status hashes (spec.md §4.4 table).
type AssetMeta struct {
	Sats       uint64
	Divisions  uint8
	Reissuable bool
	HasIPFS    bool
	IPFS       string
}

// QualificationEntry is one (h160, height, txhash, txpos, flag) tuple
// underlying qualifier-tag / h160-tag status hashes.
type QualificationEntry struct {
	H160   string
	Asset  string
	Height int32
	TxHash [32]byte
	TxPos  int
	Flag   bool
}

// BroadcastEntry is one (height, txhash, txpos, data, expiration)
// tuple underlying asset-broadcast status hashes.
type BroadcastEntry struct {
	Height     int32
	TxHash     [32]byte
	TxPos      int
	Data       string
	Expiration int64
}

// AssociationEntry is one (asset, height, txhash, restricted_tx_pos,
// qualifying_tx_pos, associated) tuple underlying qualifier-association
// status hashes.
type AssociationEntry struct {
	Asset            string
	Height           int32
	TxHash           [32]byte
	RestrictedTxPos  int
	QualifyingTxPos  int
	Associated       bool
}

// DB is the indexed database collaborator (spec.md §6).
type DB interface {
	StateHeight() int32
	HistoryFlushCount() int

	RawHeader(ctx context.Context, height int32) ([]byte, error)
	ReadHeaders(ctx context.Context, start, count int32) ([]byte, error)
	HeaderBranchAndRoot(ctx context.Context, height, cpHeight int32) (branch [][32]byte, root [32]byte, err error)

	TxHashesAtBlockheight(ctx context.Context, height int32) ([][32]byte, error)
	LimitedHistory(ctx context.Context, hashX []byte, limit int) ([]TxEntry, error)
	AllUTXOs(ctx context.Context, hashX []byte, asset string) ([]UTXO, error)

	LookupAssetMeta(ctx context.Context, asset string) (AssetMeta, bool, error)
	LookupAssetMetaHistory(ctx context.Context, asset string) ([]AssetMeta, error)

	QualificationsForQualifier(ctx context.Context, asset string) ([]QualificationEntry, error)
	QualificationsForQualifierHistory(ctx context.Context, asset string) ([]QualificationEntry, error)
	QualificationsForH160(ctx context.Context, h160 string) ([]QualificationEntry, error)
	QualificationsForH160History(ctx context.Context, h160 string) ([]QualificationEntry, error)

	RestrictedFrozenHistory(ctx context.Context, asset string) ([]bool, error)
	IsRestrictedFrozen(ctx context.Context, asset string) (bool, error)
	GetRestrictedString(ctx context.Context, asset string) (string, bool, error)
	GetRestrictedStringHistory(ctx context.Context, asset string) ([]string, error)

	LookupQualifierAssociations(ctx context.Context, asset string) ([]AssociationEntry, error)
	LookupQualifierAssociationsHistory(ctx context.Context, asset string) ([]AssociationEntry, error)

	GetAssetsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	IsH160Qualified(ctx context.Context, h160, asset string) (bool, error)
	LookupMessages(ctx context.Context, asset string) ([]BroadcastEntry, error)

	MerkleBranchAndRoot(ctx context.Context, txHashes [][32]byte, pos int) (branch [][32]byte, root [32]byte, err error)
}

// UTXO is an unspent transaction output as returned by DB/Mempool.
type UTXO struct {
	TxHash [32]byte
	TxPos  int
	Height int32
	Value  uint64
	Asset  string
}

// MempoolTx summarizes one mempool transaction for address status
// derivation (spec.md §4.4 scripthash row).
type MempoolTx struct {
	TxHash                 [32]byte
	HasUnconfirmedInputs   bool
}

// Mempool is the mempool index collaborator (spec.md §6).
type Mempool interface {
	TransactionSummaries(ctx context.Context, hashX []byte) ([]MempoolTx, error)
	UnorderedUTXOs(ctx context.Context, hashX []byte) ([]UTXO, error)
	PotentialSpends(ctx context.Context, hashX []byte) (map[[32]byte]struct{}, error)
	BalanceDelta(ctx context.Context, hashX []byte) (int64, error)

	GetAssetCreationIfAny(ctx context.Context, txHash [32]byte) (AssetMeta, bool, error)
	GetAssetReissuesIfAny(ctx context.Context, txHash [32]byte) (AssetMeta, bool, error)

	GetBroadcasts(ctx context.Context, asset string) ([]BroadcastEntry, error)
	GetH160Tags(ctx context.Context, h160 string) ([]QualificationEntry, error)
	GetQualifierTags(ctx context.Context, asset string) ([]QualificationEntry, error)

	IsFrozen(ctx context.Context, asset string) (bool, error)
	RestrictedVerifier(ctx context.Context, asset string) (string, bool, error)
	RestrictedAssetsAssociatedWithQualifier(ctx context.Context, asset string) ([]AssociationEntry, error)

	CompactFeeHistogram(ctx context.Context) ([][2]float64, error)
}

// Daemon is the daemon RPC collaborator (spec.md §6).
type Daemon interface {
	GetRawTransaction(ctx context.Context, txHash [32]byte) ([]byte, error)
	GetNetworkInfo(ctx context.Context) (map[string]any, error)
	EstimateSmartFee(ctx context.Context, blocks int, mode string) (feerate float64, ok bool, err error)
	BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error)
	ListAddressesByAsset(ctx context.Context, asset string) ([]string, error)
	CachedHeight(ctx context.Context) (int32, error)
	LoggedURL() string
	SetURL(url string)
}

// BP is the block processor collaborator (spec.md §6).
type BP interface {
	StateTip() [32]byte
	BackedUp() <-chan struct{} // fires once per reorg event
	ForceChainReorg(ctx context.Context, count int) error
}

// PeerInfo describes one known peer, for the getinfo/peers local RPC
// commands.
type PeerInfo struct {
	Host    string
	Ports   map[string]int
	Pruning string
	Version string
}

// PeerManager is the peer-discovery collaborator (spec.md §6).
type PeerManager interface {
	AddLocalRPCPeer(ctx context.Context, realName string) error
	OnAddPeer(ctx context.Context, features map[string]any, source string) (bool, error)
	OnPeersSubscribe(isTor bool) []PeerInfo
	DiscoverPeers(ctx context.Context) error
	ProxyAddress() (string, bool)
	Info() map[string]any
	RPCData() map[string]any
	SendTopicUpdates(ctx context.Context, topic string, payload any) error
}
