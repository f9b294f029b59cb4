package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/logging"
)

func encodeJSON(v any) ([]byte, error) { return json.Marshal(v) }

// Touched bundles the per-kind touched-key sets the block processor
// hands to NotifySessions (spec.md §4.4 "_notify_sessions(height,
// touched, assets, q, h, b, f, v, qv)").
type Touched struct {
	HashXs        []string
	Assets        []string
	QualifierTags []string
	H160Tags      []string
	Broadcasts    []string
	Frozen        []string
	Validators    []string
	QualifierAssn []string
}

// Notifier is the callback for the block processor (obtained from
// NotifyCallback): the BP calls it whenever the chain tip advances or
// indexed state changes.
type Notifier func(ctx context.Context, height int32, touched Touched)

// NotifyCallback returns the bound notifier to hand to the BP.
func (m *Manager) NotifyCallback() Notifier {
	return m.NotifySessions
}

// NotifySessions implements spec.md §4.4: if height changed, refresh
// hsub_results and invalidate history_cache for every touched hashX;
// then concurrently notify every session, with one failing notify
// never cancelling the others.
func (m *Manager) NotifySessions(ctx context.Context, height int32, touched Touched) {
	start := time.Now()
	heightChanged := m.notifiedHeight.Load() != height

	if heightChanged {
		if err := m.RefreshHsubResults(ctx, height); err != nil {
			m.logger.Warn().Err(err).Msg("hsub_results refresh failed during notify")
		}
		m.notifiedHeight.Store(height)
		for _, hx := range touched.HashXs {
			m.HistoryCache.Invalidate(hx)
		}
	}

	sessions := m.AllSessions()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			defer logging.RecoverPanic(m.logger, "notify", map[string]any{"session_id": s.ID})
			m.notifyOne(ctx, s, height, heightChanged, touched)
		}(s)
	}
	wg.Wait()

	if m.metrics != nil {
		m.metrics.NotifyLatency.Observe(time.Since(start).Seconds())
	}
}

// notifyOne is the per-session half of notify dispatch: the
// ElectrumX-protocol override (LocalRPC sessions subscribe to
// nothing, so every set is empty and this is a no-op for them).
func (m *Manager) notifyOne(ctx context.Context, s *Session, height int32, heightChanged bool, touched Touched) {
	if heightChanged && s.SubscribeHeaders() {
		m.pushHeaderNotification(s, height)
	}

	m.notifyAssetFamily(ctx, s, touched)

	if s.HashXSubs.Count() == 0 && len(touched.HashXs) == 0 && !heightChanged {
		return
	}
	m.notifyScriptHashes(ctx, s, heightChanged, touched.HashXs)
}

func (m *Manager) pushHeaderNotification(s *Session, height int32) {
	hsub := m.HsubResults()
	if hsub == nil {
		return
	}
	m.sendNotification(s, "blockchain.headers.subscribe", []any{
		map[string]any{"hex": hsub.Hex, "height": hsub.Height},
	})
}

func (m *Manager) notifyAssetFamily(ctx context.Context, s *Session, touched Touched) {
	for _, asset := range s.AssetSubs.Intersect(touched.Assets) {
		meta, ok, err := m.db.LookupAssetMeta(ctx, asset)
		if err != nil {
			continue
		}
		status, isNull := AssetStatus(meta, ok)
		m.sendSubscriptionNotification(s, "blockchain.asset.subscribe", asset, status, isNull)
	}
	for _, asset := range s.QualifierTagSubs.Intersect(touched.QualifierTags) {
		entries, err := m.db.QualificationsForQualifier(ctx, asset)
		if err != nil {
			continue
		}
		status, isNull := QualificationStatus(entries, true)
		m.sendSubscriptionNotification(s, "blockchain.tags.qualifier.subscribe", asset, status, isNull)
	}
	for _, h160 := range s.H160TagSubs.Intersect(touched.H160Tags) {
		entries, err := m.db.QualificationsForH160(ctx, h160)
		if err != nil {
			continue
		}
		status, isNull := QualificationStatus(entries, false)
		m.sendSubscriptionNotification(s, "blockchain.tags.h160.subscribe", h160, status, isNull)
	}
	for _, asset := range s.BroadcastSubs.Intersect(touched.Broadcasts) {
		entries, err := m.db.LookupMessages(ctx, asset)
		if err != nil {
			continue
		}
		status, isNull := BroadcastStatus(entries)
		m.sendSubscriptionNotification(s, "blockchain.broadcasts.subscribe", asset, status, isNull)
	}
	for _, asset := range s.FrozenSubs.Intersect(touched.Frozen) {
		frozen, err := m.db.IsRestrictedFrozen(ctx, asset)
		if err != nil {
			continue
		}
		m.sendNotification(s, "blockchain.restricted.get_frozen.subscribe", []any{asset, frozen})
	}
	for _, asset := range s.ValidatorSubs.Intersect(touched.Validators) {
		str, ok, err := m.db.GetRestrictedString(ctx, asset)
		if err != nil {
			continue
		}
		var result any
		if ok {
			result = str
		}
		m.sendNotification(s, "blockchain.restricted.get_verifier_string.subscribe", []any{asset, result})
	}
	for _, asset := range s.QualifierValidatorSubs.Intersect(touched.QualifierAssn) {
		entries, err := m.db.LookupQualifierAssociations(ctx, asset)
		if err != nil {
			continue
		}
		status, isNull := AssociationStatus(entries)
		m.sendSubscriptionNotification(s, "blockchain.qualifier_associations.subscribe", asset, status, isNull)
	}
}

// notifyScriptHashes re-evaluates scripthash subscriptions for every
// touched hashX (unconditionally notified, per session.py:1202-1210),
// and additionally every hashX recorded in mempool_statuses when the
// height changed (session.py:1212-1220) — that second, extra set only
// notifies when the status actually differs from the stored one.
func (m *Manager) notifyScriptHashes(ctx context.Context, s *Session, heightChanged bool, touchedHashXs []string) {
	touched := s.HashXSubs.Intersect(touchedHashXs)
	done := make(map[string]struct{}, len(touched))
	for _, hx := range touched {
		done[hx] = struct{}{}
		m.notifyScriptHash(ctx, s, hx, false)
	}

	if !heightChanged {
		return
	}
	for _, hx := range s.MempoolStatuses.Keys() {
		if _, ok := done[hx]; ok {
			continue
		}
		m.notifyScriptHash(ctx, s, hx, true)
	}
}

// notifyScriptHash re-evaluates a single scripthash subscription.
// suppressUnchanged gates the notification on the status actually
// differing from the stored mempool_statuses entry; touched hashXs
// pass suppressUnchanged=false and always notify.
func (m *Manager) notifyScriptHash(ctx context.Context, s *Session, hx string, suppressUnchanged bool) {
	alias, ok := s.HashXSubs.Alias(hx)
	if !ok {
		return
	}
	status, fromMempool, err := m.scriptHashStatus(ctx, []byte(hx))
	if err != nil {
		return
	}

	prev, hadPrev := s.MempoolStatuses.Get(hx)
	if suppressUnchanged && hadPrev && prev == status {
		return
	}
	var result any
	if status != "" {
		result = status
	}
	m.sendNotification(s, "blockchain.scripthash.subscribe", []any{alias, result})
	s.MempoolStatuses.Update(hx, status, fromMempool)
}

func (m *Manager) scriptHashStatus(ctx context.Context, hashX []byte) (status string, fromMempool bool, err error) {
	history, err := m.db.LimitedHistory(ctx, hashX, 1<<30)
	if err != nil {
		return "", false, &collaborators.DBError{Err: err}
	}
	mempool, err := m.mempool.TransactionSummaries(ctx, hashX)
	if err != nil {
		return "", false, err
	}
	entries := make([]collaborators.TxEntry, len(history))
	copy(entries, history)
	status, fromMempool, isNull := ScriptHashStatus(entries, mempool)
	if isNull {
		return "", false, nil
	}
	return status, fromMempool, nil
}

func (m *Manager) sendSubscriptionNotification(s *Session, method, key, status string, isNull bool) {
	var result any
	if !isNull {
		result = status
	}
	m.sendNotification(s, method, []any{key, result})
}

func (m *Manager) sendNotification(s *Session, method string, params []any) {
	payload := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  []any  `json:"params"`
	}{JSONRPC: "2.0", Method: method, Params: params}

	msg, err := encodeJSON(payload)
	if err != nil {
		return
	}
	if err := s.WriteMessage(msg); err != nil {
		m.logger.Debug().Err(err).Uint64("session_id", s.ID).Msg("notification write failed")
		return
	}
	if m.metrics != nil {
		m.metrics.NotifiesSent.Inc()
	}
}
