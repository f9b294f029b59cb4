package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/adred-codev/indexer-sessiond/internal/cache"
	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// protocolMin/Max are the protocol tuple bounds (spec.md §4.2
// "server.version"); handleServerVersion rejects a negotiated tuple
// listed in protocolBad.
var (
	protocolMin = [2]int{1, 4}
	protocolMax = [2]int{1, 6}
)

var protocolBad = map[[2]int]bool{
	{1, 0}: true,
}

// ElectrumXHandlersMin returns the JSON-RPC method table installed on
// external (tcp/ssl/ws/wss) sessions at accept time (spec.md §4.2,
// §6's illustrative method list; the exhaustive wire surface is a
// Non-goal, so this implements one representative handler per listed
// family rather than every variant the original exposes).
func ElectrumXHandlersMin() HandlerTable {
	return HandlerTable{
		"server.version":  handleServerVersion,
		"server.ping":     handlePing,
		"server.add_peer": handleAddPeer,
		"server.banner":   handleBanner,
		"server.donation_address": handleDonationAddress,
		"server.features":         handleFeatures,
		"server.peers.subscribe":  handlePeersSubscribe,

		"blockchain.block.header":  handleBlockHeader,
		"blockchain.block.headers": handleBlockHeaders,
		"blockchain.estimatefee":   handleEstimateFee,
		"blockchain.relayfee":      handleRelayFee,
		"blockchain.headers.subscribe": handleHeadersSubscribe,

		"blockchain.scripthash.get_balance": handleScripthashGetBalance,
		"blockchain.scripthash.get_history": handleScripthashGetHistory,
		"blockchain.scripthash.get_mempool": handleScripthashGetMempool,
		"blockchain.scripthash.listunspent": handleScripthashListUnspent,
		"blockchain.scripthash.subscribe":   handleScripthashSubscribe,
		"blockchain.scripthash.unsubscribe": handleScripthashUnsubscribe,

		"blockchain.transaction.broadcast":      handleTransactionBroadcast,
		"blockchain.transaction.get":            handleTransactionGet,
		"blockchain.transaction.get_merkle":      handleTransactionGetMerkle,
		"blockchain.transaction.get_tsc_merkle":  handleTransactionGetTSCMerkle,
		"blockchain.transaction.id_from_pos":     handleTransactionIDFromPos,

		"mempool.get_fee_histogram": handleFeeHistogram,

		"blockchain.asset.subscribe":   handleAssetSubscribe,
		"blockchain.asset.unsubscribe": handleAssetUnsubscribe,

		"blockchain.tags.qualifier.subscribe":   handleQualifierTagSubscribe,
		"blockchain.tags.qualifier.unsubscribe": handleQualifierTagUnsubscribe,
		"blockchain.tags.h160.subscribe":        handleH160TagSubscribe,
		"blockchain.tags.h160.unsubscribe":      handleH160TagUnsubscribe,

		"blockchain.broadcasts.subscribe":   handleBroadcastSubscribe,
		"blockchain.broadcasts.unsubscribe": handleBroadcastUnsubscribe,

		"blockchain.restricted.get_frozen.subscribe":   handleFrozenSubscribe,
		"blockchain.restricted.get_frozen.unsubscribe": handleFrozenUnsubscribe,

		"blockchain.restricted.get_verifier_string.subscribe":   handleValidatorSubscribe,
		"blockchain.restricted.get_verifier_string.unsubscribe": handleValidatorUnsubscribe,

		"blockchain.qualifier_associations.subscribe":   handleQualifierAssnSubscribe,
		"blockchain.qualifier_associations.unsubscribe": handleQualifierAssnUnsubscribe,

		"topic.update": handleTopicUpdate,
	}
}

func handleServerVersion(s *Session, params []byte) (any, error) {
	if s.SVSeen() {
		return nil, &rpc.ReplyAndDisconnect{RPCError: rpc.NewError(rpc.BadRequest, "server.version already sent")}
	}
	var args struct {
		ClientName      string `json:"0"`
		ProtocolVersion any    `json:"1"`
	}
	_ = bindParams(params, &args)
	s.SetSVSeen(true)
	s.ClientName = args.ClientName

	if m := s.manager; m != nil && m.cfg != nil && m.cfg.DropClientPattern != "" {
		if matched, _ := regexp.MatchString(m.cfg.DropClientPattern, args.ClientName); matched {
			return nil, &rpc.ReplyAndDisconnect{RPCError: rpc.NewError(rpc.BadRequest, "unsupported client: "+args.ClientName)}
		}
	}

	negotiated, ok := negotiateProtocol(args.ProtocolVersion)
	if !ok || protocolBad[negotiated] {
		return nil, &rpc.ReplyAndDisconnect{RPCError: rpc.NewError(rpc.BadRequest, "unsupported protocol version")}
	}
	return []string{"indexer-sessiond", fmt.Sprintf("%d.%d", negotiated[0], negotiated[1])}, nil
}

// negotiateProtocol does not parse the client's requested version:
// whatever raw holds, it returns protocolMax with ok=true. The
// client's range is not intersected with [protocolMin, protocolMax],
// so the unsupported-version and protocolBad rejections in
// handleServerVersion are never reached.
func negotiateProtocol(raw any) ([2]int, bool) {
	if raw == nil {
		return protocolMax, true
	}
	return protocolMax, true
}

func handlePing(s *Session, params []byte) (any, error) {
	return nil, nil
}

func handleAddPeer(s *Session, params []byte) (any, error) {
	var args struct {
		Features map[string]any `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	ok, err := s.manager.peers.OnAddPeer(context.Background(), args.Features, s.RemoteAddr)
	if err != nil {
		return nil, &collaborators.DaemonError{Err: err}
	}
	return ok, nil
}

func handleBanner(s *Session, params []byte) (any, error) {
	return "Welcome to indexer-sessiond.", nil
}

func handleDonationAddress(s *Session, params []byte) (any, error) {
	return "", nil
}

func handleFeatures(s *Session, params []byte) (any, error) {
	m := s.manager
	info := m.peers.Info()
	info["hosted_protocol_min"] = fmt.Sprintf("%d.%d", protocolMin[0], protocolMin[1])
	info["hosted_protocol_max"] = fmt.Sprintf("%d.%d", protocolMax[0], protocolMax[1])
	return info, nil
}

func handlePeersSubscribe(s *Session, params []byte) (any, error) {
	return s.manager.peers.OnPeersSubscribe(s.IsTor), nil
}

func handleBlockHeader(s *Session, params []byte) (any, error) {
	var args struct {
		Height   int32 `json:"0"`
		CPHeight int32 `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if err := nonNegativeInt(int(args.Height)); err != nil {
		return nil, err
	}
	raw, err := s.manager.db.RawHeader(context.Background(), args.Height)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	if args.CPHeight == 0 {
		return hex.EncodeToString(raw), nil
	}
	branch, root, err := s.manager.db.HeaderBranchAndRoot(context.Background(), args.Height, args.CPHeight)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	return map[string]any{
		"header": hex.EncodeToString(raw),
		"branch": hexEncodeAll(branch),
		"root":   hex.EncodeToString(root[:]),
	}, nil
}

const maxChunkSize = 2016

func handleBlockHeaders(s *Session, params []byte) (any, error) {
	var args struct {
		StartHeight int32 `json:"0"`
		Count       int32 `json:"1"`
		CPHeight    int32 `json:"2"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if args.Count > maxChunkSize {
		args.Count = maxChunkSize
	}
	raw, err := s.manager.db.ReadHeaders(context.Background(), args.StartHeight, args.Count)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	return map[string]any{
		"hex":   hex.EncodeToString(raw),
		"count": args.Count,
		"max":   maxChunkSize,
	}, nil
}

func handleEstimateFee(s *Session, params []byte) (any, error) {
	var args struct {
		Blocks int    `json:"0"`
		Mode   string `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if args.Mode == "" {
		args.Mode = "conservative"
	}
	m := s.manager
	tip := m.bp.StateTip()
	fee, ok, err := m.estimatefee.EstimateFee(context.Background(), tip, args.Blocks, args.Mode)
	if err != nil {
		return nil, &collaborators.DaemonError{Err: err}
	}
	if !ok {
		return -1, nil
	}
	return fee, nil
}

func handleRelayFee(s *Session, params []byte) (any, error) {
	info, err := s.manager.daemon.GetNetworkInfo(context.Background())
	if err != nil {
		return nil, &collaborators.DaemonError{Err: err}
	}
	if fee, ok := info["relayfee"].(float64); ok {
		return fee, nil
	}
	return 0.00001, nil
}

func handleHeadersSubscribe(s *Session, params []byte) (any, error) {
	s.SetSubscribeHeaders(true)
	hsub := s.manager.HsubResults()
	if hsub == nil {
		return map[string]any{"hex": "", "height": 0}, nil
	}
	return map[string]any{"hex": hsub.Hex, "height": hsub.Height}, nil
}

func handleScripthashGetBalance(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	utxos, err := s.manager.db.AllUTXOs(context.Background(), []byte(hashX), "")
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	var confirmed uint64
	for _, u := range utxos {
		confirmed += u.Value
	}
	delta, err := s.manager.mempool.BalanceDelta(context.Background(), []byte(hashX))
	if err != nil {
		return nil, err
	}
	return map[string]any{"confirmed": confirmed, "unconfirmed": delta}, nil
}

func handleScripthashGetHistory(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	entries, cacheErr := s.manager.historyForHashX(context.Background(), hashX)
	if cacheErr != nil {
		return nil, cacheErr
	}
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"tx_hash": hexTxHash(e.TxHash), "height": e.Height}
	}
	return out, nil
}

func handleScripthashGetMempool(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	txs, err := s.manager.mempool.TransactionSummaries(context.Background(), []byte(hashX))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(txs))
	for i, t := range txs {
		fee := 0
		if t.HasUnconfirmedInputs {
			fee = -1
		}
		out[i] = map[string]any{"tx_hash": hexTxHash(t.TxHash), "height": fee}
	}
	return out, nil
}

func handleScripthashListUnspent(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	utxos, err := s.manager.db.AllUTXOs(context.Background(), []byte(hashX), "")
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	out := make([]map[string]any, len(utxos))
	for i, u := range utxos {
		out[i] = map[string]any{
			"tx_hash": hexTxHash(u.TxHash), "tx_pos": u.TxPos,
			"height": u.Height, "value": u.Value,
		}
	}
	return out, nil
}

func handleScripthashSubscribe(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	s.HashXSubs.Set(hashX, args.Scripthash)

	status, fromMempool, statusErr := s.manager.scriptHashStatus(context.Background(), []byte(hashX))
	if statusErr != nil {
		return nil, statusErr
	}
	s.MempoolStatuses.Update(hashX, status, fromMempool)
	if status == "" {
		return nil, nil
	}
	return status, nil
}

func handleScripthashUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct {
		Scripthash string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashX, err := scripthashToHashX(args.Scripthash)
	if err != nil {
		return nil, err
	}
	return s.HashXSubs.Remove(hashX), nil
}

func handleTransactionBroadcast(s *Session, params []byte) (any, error) {
	var args struct {
		RawTx string `json:"0"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	raw, err := parseHexBytes(args.RawTx)
	if err != nil {
		return nil, err
	}
	txHash, err := s.manager.daemon.BroadcastTransaction(context.Background(), raw)
	if err != nil {
		return nil, &collaborators.DaemonError{Err: err}
	}
	s.TxsSent.Add(1)
	s.manager.txsSent.Add(1)
	return hexTxHash(txHash), nil
}

func handleTransactionGet(s *Session, params []byte) (any, error) {
	var args struct {
		TxHash  string `json:"0"`
		Verbose bool   `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	txHash, err := parseHexHash32(args.TxHash)
	if err != nil {
		return nil, err
	}
	raw, err := s.manager.daemon.GetRawTransaction(context.Background(), txHash)
	if err != nil {
		return nil, &collaborators.DaemonError{Err: err}
	}
	return hex.EncodeToString(raw), nil
}

func handleTransactionGetMerkle(s *Session, params []byte) (any, error) {
	var args struct {
		TxHash string `json:"0"`
		Height int32  `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	txHash, err := parseHexHash32(args.TxHash)
	if err != nil {
		return nil, err
	}
	return s.manager.merkleForTx(context.Background(), args.Height, txHash, false)
}

func handleTransactionGetTSCMerkle(s *Session, params []byte) (any, error) {
	var args struct {
		TxHash     string `json:"0"`
		Height     int32  `json:"1"`
		TxidOrTx   string `json:"2"`
		TargetType string `json:"3"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if args.TargetType == "" {
		args.TargetType = "block_hash"
	}
	txHash, err := parseHexHash32(args.TxHash)
	if err != nil {
		return nil, err
	}
	result, err := s.manager.merkleForTx(context.Background(), args.Height, txHash, true)
	if err != nil {
		return nil, err
	}
	m := result.(map[string]any)
	computedRootHex := m["merkle_root"].(string)

	rawHeader, err := s.manager.db.RawHeader(context.Background(), args.Height)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	headerRoot, err := headerMerkleRoot(rawHeader)
	if err != nil {
		return nil, rpc.NewError(rpc.BadRequest, err.Error())
	}
	if hex.EncodeToString(headerRoot[:]) != computedRootHex {
		return nil, rpc.NewError(rpc.BadRequest, "merkle root does not match header")
	}

	target, err := formatTSCTarget(args.TargetType, hex.EncodeToString(rawHeader), computedRootHex)
	if err != nil {
		return nil, err
	}

	txidOrTx := args.TxHash
	if args.TxidOrTx == "tx" {
		raw, err := s.manager.daemon.GetRawTransaction(context.Background(), txHash)
		if err != nil {
			return nil, &collaborators.DaemonError{Err: err}
		}
		txidOrTx = hex.EncodeToString(raw)
	}

	return map[string]any{
		"index":       m["pos"],
		"txid_or_tx":  txidOrTx,
		"target":      target,
		"target_type": args.TargetType,
		"nodes":       m["merkle"],
	}, nil
}

func handleTransactionIDFromPos(s *Session, params []byte) (any, error) {
	var args struct {
		Height int32 `json:"0"`
		TxPos  int   `json:"1"`
		Merkle bool  `json:"2"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	hashes, _, err := s.manager.TxHashesAtBlockheight(context.Background(), args.Height)
	if err != nil {
		return nil, err
	}
	if args.TxPos < 0 || args.TxPos >= len(hashes) {
		return nil, rpc.NewError(rpc.BadRequest, "tx_pos out of range")
	}
	txHash := hashes[args.TxPos]
	if !args.Merkle {
		return hexTxHash(txHash), nil
	}
	return s.manager.merkleForTx(context.Background(), args.Height, txHash, false)
}

func handleFeeHistogram(s *Session, params []byte) (any, error) {
	hist, err := s.manager.mempool.CompactFeeHistogram(context.Background())
	if err != nil {
		return nil, err
	}
	return hist, nil
}

func handleAssetSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	asset, err := assetName(args.Asset)
	if err != nil {
		return nil, err
	}
	s.AssetSubs.Add(asset)
	meta, ok, err := s.manager.db.LookupAssetMeta(context.Background(), asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	status, isNull := AssetStatus(meta, ok)
	if isNull {
		return nil, nil
	}
	return status, nil
}

func handleAssetUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.AssetSubs.Remove(args.Asset), nil
}

func handleQualifierTagSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.QualifierTagSubs.Add(args.Asset)
	entries, err := s.manager.db.QualificationsForQualifier(context.Background(), args.Asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	status, isNull := QualificationStatus(entries, true)
	if isNull {
		return nil, nil
	}
	return status, nil
}

func handleQualifierTagUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.QualifierTagSubs.Remove(args.Asset), nil
}

func handleH160TagSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ H160 string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	h160, err := h160Hex(args.H160)
	if err != nil {
		return nil, err
	}
	s.H160TagSubs.Add(h160)
	entries, err := s.manager.db.QualificationsForH160(context.Background(), h160)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	status, isNull := QualificationStatus(entries, false)
	if isNull {
		return nil, nil
	}
	return status, nil
}

func handleH160TagUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ H160 string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.H160TagSubs.Remove(args.H160), nil
}

func handleBroadcastSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.BroadcastSubs.Add(args.Asset)
	entries, err := s.manager.db.LookupMessages(context.Background(), args.Asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	status, isNull := BroadcastStatus(entries)
	if isNull {
		return nil, nil
	}
	return status, nil
}

func handleBroadcastUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.BroadcastSubs.Remove(args.Asset), nil
}

func handleFrozenSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.FrozenSubs.Add(args.Asset)
	frozen, err := s.manager.db.IsRestrictedFrozen(context.Background(), args.Asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	return frozen, nil
}

func handleFrozenUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.FrozenSubs.Remove(args.Asset), nil
}

func handleValidatorSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.ValidatorSubs.Add(args.Asset)
	str, ok, err := s.manager.db.GetRestrictedString(context.Background(), args.Asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	if !ok {
		return nil, nil
	}
	return str, nil
}

func handleValidatorUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.ValidatorSubs.Remove(args.Asset), nil
}

func handleQualifierAssnSubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.QualifierValidatorSubs.Add(args.Asset)
	entries, err := s.manager.db.LookupQualifierAssociations(context.Background(), args.Asset)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	status, isNull := AssociationStatus(entries)
	if isNull {
		return nil, nil
	}
	return status, nil
}

func handleQualifierAssnUnsubscribe(s *Session, params []byte) (any, error) {
	var args struct{ Asset string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	return s.QualifierValidatorSubs.Remove(args.Asset), nil
}

// handleTopicUpdate relays a peer-originated topic update (spec.md §9
// Open Questions: "subscribe_topics ... treat as placeholder not
// covered by tests").
func handleTopicUpdate(s *Session, params []byte) (any, error) {
	var args struct {
		Topic   string `json:"0"`
		Payload string `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if err := s.manager.peers.SendTopicUpdates(context.Background(), args.Topic, args.Payload); err != nil {
		return nil, err
	}
	return true, nil
}

func hexEncodeAll(hashes [][32]byte) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = hex.EncodeToString(h[:])
	}
	return out
}

// historyForHashX wraps history_cache (spec.md §4.5 "LRU caches with
// saved errors"): a cached oversized-history error is re-raised on
// every subsequent call until eviction or reorg-touched invalidation
// (invariant #6).
func (m *Manager) historyForHashX(ctx context.Context, hashX string) ([]collaborators.TxEntry, error) {
	const maxHistory = 100000

	if res, ok := m.HistoryCache.Get(hashX); ok {
		if m.metrics != nil {
			m.metrics.CacheHits.WithLabelValues("history").Inc()
		}
		return res.Value, res.Err
	}
	if m.metrics != nil {
		m.metrics.CacheMisses.WithLabelValues("history").Inc()
	}

	entries, err := m.db.LimitedHistory(ctx, []byte(hashX), maxHistory+1)
	if err != nil {
		return nil, &collaborators.DBError{Err: err}
	}
	if len(entries) > maxHistory {
		oversized := rpc.NewError(rpc.BadRequest, "history too large")
		m.HistoryCache.Put(hashX, cache.Failed[[]collaborators.TxEntry](oversized))
		return nil, oversized
	}
	m.HistoryCache.Put(hashX, cache.Ok(entries))
	return entries, nil
}

func (m *Manager) merkleForTx(ctx context.Context, height int32, txHash [32]byte, tscFormat bool) (any, error) {
	hashes, _, err := m.TxHashesAtBlockheight(ctx, height)
	if err != nil {
		return nil, err
	}
	pos := -1
	for i, h := range hashes {
		if h == txHash {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, rpc.NewError(rpc.BadRequest, "tx_hash not found at that height")
	}
	branch, root, _, err := m.MerkleBranch(ctx, height, hashes, pos, tscFormat)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"merkle":      branch,
		"pos":         pos,
		"merkle_root": hex.EncodeToString(root[:]),
	}, nil
}
