package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// recordingFramer captures every message written to it instead of
// touching a real connection.
type recordingFramer struct {
	written [][]byte
}

func (f *recordingFramer) ReadMessage() ([]byte, error) { return nil, nil }
func (f *recordingFramer) WriteMessage(msg []byte) error {
	f.written = append(f.written, msg)
	return nil
}
func (f *recordingFramer) Close() error { return nil }

type notifyFakeDB struct {
	collaborators.DB
	stateH    int32
	rawHeader []byte
	history   []collaborators.TxEntry
}

func (f *notifyFakeDB) StateHeight() int32 { return f.stateH }
func (f *notifyFakeDB) RawHeader(ctx context.Context, height int32) ([]byte, error) {
	return f.rawHeader, nil
}
func (f *notifyFakeDB) LimitedHistory(ctx context.Context, hashX []byte, limit int) ([]collaborators.TxEntry, error) {
	return f.history, nil
}

type notifyFakeMempool struct {
	collaborators.Mempool
	txs []collaborators.MempoolTx
}

func (f notifyFakeMempool) TransactionSummaries(ctx context.Context, hashX []byte) ([]collaborators.MempoolTx, error) {
	return f.txs, nil
}

func newNotifyTestManager(t *testing.T, db collaborators.DB) *Manager {
	t.Helper()
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	m.db = db
	m.mempool = notifyFakeMempool{}
	return m
}

func sessionWithFramerNow(m *Manager, id uint64, framer Framer) *Session {
	s := NewSession(id, rpc.KindTCP, "203.0.113.1:4000", framer, m.limits, 0, time.Now())
	s.manager = m
	m.AddSession(s)
	return s
}

// A height change must refresh hsub_results and push a headers
// notification to every session subscribed to it (spec.md §4.4).
func TestNotifySessionsPushesHeaderOnHeightChange(t *testing.T) {
	rawHeader := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	db := &notifyFakeDB{stateH: 100, rawHeader: rawHeader}
	m := newNotifyTestManager(t, db)

	framer := &recordingFramer{}
	s := sessionWithFramerNow(m, 1, framer)
	s.SetSubscribeHeaders(true)

	m.NotifySessions(context.Background(), 100, Touched{})

	if len(framer.written) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(framer.written))
	}
	var msg struct {
		Method string `json:"method"`
		Params []struct {
			Hex    string `json:"hex"`
			Height int32  `json:"height"`
		} `json:"params"`
	}
	if err := json.Unmarshal(framer.written[0], &msg); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if msg.Method != "blockchain.headers.subscribe" {
		t.Fatalf("expected headers.subscribe notification, got %q", msg.Method)
	}
	if msg.Params[0].Hex != hex.EncodeToString(rawHeader) || msg.Params[0].Height != 100 {
		t.Fatalf("unexpected header payload: %+v", msg.Params[0])
	}

	if m.HsubResults() == nil || m.HsubResults().Height != 100 {
		t.Fatal("expected hsub_results to be refreshed to height 100")
	}
}

// A session not subscribed to headers receives nothing on height
// change, and the cached history entry for a touched hashX is dropped.
func TestNotifySessionsInvalidatesHistoryCacheOnTouchedHashX(t *testing.T) {
	db := &notifyFakeDB{stateH: 5, rawHeader: []byte{0x01}}
	m := newNotifyTestManager(t, db)
	m.HistoryCache.Put("aa", okHistory())

	framer := &recordingFramer{}
	s := sessionWithFramerNow(m, 1, framer)
	_ = s

	m.NotifySessions(context.Background(), 5, Touched{HashXs: []string{"aa"}})

	if _, ok := m.HistoryCache.Get("aa"); ok {
		t.Fatal("expected history cache entry for touched hashX to be invalidated")
	}
}

// A scripthash subscriber only hears about its own hashX.
func TestNotifyScriptHashesOnlyNotifiesSubscribed(t *testing.T) {
	var txHash [32]byte
	txHash[0] = 1
	db := &notifyFakeDB{
		stateH:    5,
		rawHeader: []byte{0x01},
		history:   []collaborators.TxEntry{{TxHash: txHash, Height: 3}},
	}
	m := newNotifyTestManager(t, db)

	framer := &recordingFramer{}
	s := sessionWithFramerNow(m, 1, framer)
	s.HashXSubs.Set("aa", "aa")
	s.HashXSubs.Set("bb", "bb")

	m.NotifySessions(context.Background(), 5, Touched{HashXs: []string{"aa"}})
	if len(framer.written) != 1 {
		t.Fatalf("expected one scripthash notification, got %d", len(framer.written))
	}
	var msg struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
	}
	if err := json.Unmarshal(framer.written[0], &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Method != "blockchain.scripthash.subscribe" || msg.Params[0].(string) != "aa" {
		t.Fatalf("unexpected notification: %+v", msg)
	}
}

// A touched hashX notifies unconditionally, even when its freshly
// derived status equals the one already stored in mempool_statuses
// (session.py:1202-1210 writes changed[alias] = status with no
// equality check, unlike the separate mempool-only re-evaluation).
func TestNotifyScriptHashesTouchedAlwaysNotifies(t *testing.T) {
	var txHash [32]byte
	txHash[0] = 1
	db := &notifyFakeDB{
		stateH:    5,
		rawHeader: []byte{0x01},
		history:   []collaborators.TxEntry{{TxHash: txHash, Height: 3}},
	}
	m := newNotifyTestManager(t, db)
	// A mempool tx makes the derived status mempool-backed, so it is
	// stored in mempool_statuses.
	m.mempool = notifyFakeMempool{txs: []collaborators.MempoolTx{{TxHash: txHash}}}

	framer := &recordingFramer{}
	s := sessionWithFramerNow(m, 1, framer)
	s.HashXSubs.Set("aa", "aa")

	m.NotifySessions(context.Background(), 5, Touched{HashXs: []string{"aa"}})
	if len(framer.written) != 1 {
		t.Fatalf("expected one scripthash notification, got %d", len(framer.written))
	}

	// Re-notifying the same touched hashX with an identical status must
	// still send a notification: only the mempool-only re-evaluation
	// suppresses on unchanged status, not the touched set.
	m.NotifySessions(context.Background(), 5, Touched{HashXs: []string{"aa"}})
	if len(framer.written) != 2 {
		t.Fatalf("expected touched hashX to notify unconditionally, got %d total", len(framer.written))
	}
}

// The extra mempool_statuses re-evaluation on height change suppresses
// a hashX whose status is unchanged, so long as it isn't also in the
// touched set this round (session.py:1212-1220).
func TestNotifyScriptHashesMempoolOnlyReevaluationSuppressesUnchanged(t *testing.T) {
	var txHash [32]byte
	txHash[0] = 1
	db := &notifyFakeDB{
		stateH:    5,
		rawHeader: []byte{0x01},
		history:   []collaborators.TxEntry{{TxHash: txHash, Height: 3}},
	}
	m := newNotifyTestManager(t, db)
	m.mempool = notifyFakeMempool{txs: []collaborators.MempoolTx{{TxHash: txHash}}}

	framer := &recordingFramer{}
	s := sessionWithFramerNow(m, 1, framer)
	s.HashXSubs.Set("aa", "aa")

	// First call: "aa" is touched, establishes a mempool_statuses entry
	// and bumps notifiedHeight to 5.
	m.NotifySessions(context.Background(), 5, Touched{HashXs: []string{"aa"}})
	if len(framer.written) != 1 {
		t.Fatalf("expected one notification from the touched round, got %d", len(framer.written))
	}

	// Second call at a new height with "aa" untouched: it's only
	// reachable via the mempool_statuses re-evaluation, whose status is
	// unchanged, so it must be suppressed.
	m.NotifySessions(context.Background(), 6, Touched{})
	if len(framer.written) != 1 {
		t.Fatalf("expected mempool-only re-evaluation to suppress unchanged status, got %d total", len(framer.written))
	}
}
