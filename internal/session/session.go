// Package session implements the session manager and subscription/
// notification engine: Session, SessionGroup, Manager, status-hash
// derivation, and the JSON-RPC method handler tables (spec.md §3-§4).
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/cost"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// Kind mirrors rpc.Kind; re-exported so callers needn't import rpc
// just to name a session's transport.
type Kind = rpc.Kind

// HandlerFunc services one JSON-RPC method call. params is the raw
// JSON params value (object or array); the handler is responsible for
// its own argument binding (spec.md §9 "dynamic parameter binding").
type HandlerFunc func(s *Session, params []byte) (result any, err error)

// HandlerTable is a named, overlayable set of method handlers. Later
// tables installed at protocol negotiation overlay earlier ones
// (spec.md §4.2).
type HandlerTable map[string]HandlerFunc

// Session is one live connection: TCP, TLS, WS, WSS, or the local RPC
// surface (spec.md §3). The manager owns sessions in an arena keyed by
// ID; a Session holds its manager by a plain pointer — in Go this
// creates no resource leak since the GC collects cycles, but the
// *semantics* of the original's non-owning reference are preserved by
// never assuming the session is still registered: extra_cost-style
// lookups always tolerate absence (see Manager.ExtraCost).
type Session struct {
	ID         uint64
	Kind       Kind
	RemoteAddr string
	IsTor      bool

	StartTime time.Time
	lastRecv  atomic.Int64 // unix nano

	Cost              *cost.Tracker
	InitialConcurrent int
	maxConcurrent     atomic.Int32

	flags struct {
		mu               sync.Mutex
		LogMe            bool
		SVSeen           bool
		IsPeer           bool
		SubscribeHeaders bool
	}

	ProtocolMin [2]int
	ProtocolMax [2]int

	handlersMu sync.RWMutex
	Handlers   HandlerTable

	framer   Framer
	writeMu  sync.Mutex
	manager  *Manager

	Errors    atomic.Int64
	TxsSent   atomic.Int64
	SendSize  atomic.Int64
	SendCount atomic.Int64
	RecvSize  atomic.Int64
	RecvCount atomic.Int64

	// Subscription sets, one per topic kind (spec.md §3).
	HashXSubs              *HashXAlias
	AssetSubs              *SubscriptionSet[string]
	QualifierTagSubs       *SubscriptionSet[string]
	H160TagSubs            *SubscriptionSet[string]
	BroadcastSubs          *SubscriptionSet[string]
	FrozenSubs             *SubscriptionSet[string]
	ValidatorSubs          *SubscriptionSet[string]
	QualifierValidatorSubs *SubscriptionSet[string]
	TopicSubs              *SubscriptionSet[string] // subscribe_topics placeholder, §9 Open Questions

	MempoolStatuses *MempoolStatuses

	ClientName string
}

// Framer is the minimal read/write surface Session needs from a
// transport connection (satisfied by rpc.Framer; kept as a local
// interface so this package does not need rpc for anything but Kind).
type Framer interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
}

// NewSession constructs a session in its initial state. ElectrumX
// sessions start at cost=5.0 (original default); LocalRPC sessions
// start at 0. No response-size limit is applied to any session kind:
// config.EffectiveMaxSend is computed but responses are written
// whatever their size.
func NewSession(id uint64, kind Kind, remoteAddr string, framer Framer, limits cost.Limits, startCost float64, now time.Time) *Session {
	s := &Session{
		ID:                id,
		Kind:              kind,
		RemoteAddr:        remoteAddr,
		StartTime:         now,
		Cost:              cost.NewTracker(limits, startCost, now),
		InitialConcurrent: limits.InitialConcurrent,
		framer:            framer,

		HashXSubs:              NewHashXAlias(),
		AssetSubs:              NewSubscriptionSet[string](),
		QualifierTagSubs:       NewSubscriptionSet[string](),
		H160TagSubs:            NewSubscriptionSet[string](),
		BroadcastSubs:          NewSubscriptionSet[string](),
		FrozenSubs:             NewSubscriptionSet[string](),
		ValidatorSubs:          NewSubscriptionSet[string](),
		QualifierValidatorSubs: NewSubscriptionSet[string](),
		TopicSubs:              NewSubscriptionSet[string](),
		MempoolStatuses:        NewMempoolStatuses(),
	}
	s.maxConcurrent.Store(int32(limits.InitialConcurrent))
	s.lastRecv.Store(now.UnixNano())
	return s
}

// Touch records a message arrival for the stale reaper (spec.md §4.3).
func (s *Session) Touch(now time.Time) { s.lastRecv.Store(now.UnixNano()) }

// LastRecv returns the last-message-received timestamp.
func (s *Session) LastRecv() time.Time { return time.Unix(0, s.lastRecv.Load()) }

// MaxConcurrent returns the session's current concurrency allowance,
// as last computed by the recalc supervisor or at admission.
func (s *Session) MaxConcurrent() int { return int(s.maxConcurrent.Load()) }

// SetMaxConcurrent installs a freshly computed concurrency allowance.
func (s *Session) SetMaxConcurrent(n int) { s.maxConcurrent.Store(int32(n)) }

// SubCount is the subscription count that slows cost decay (spec.md
// §4.3 "subscriptions slow the decay"); LocalRPC sessions never
// subscribe so always return 0.
func (s *Session) SubCount() int {
	if s.Kind == rpc.KindRPC {
		return 0
	}
	return s.HashXSubs.Count() +
		s.AssetSubs.Count() + s.QualifierTagSubs.Count() + s.H160TagSubs.Count() +
		s.BroadcastSubs.Count() + s.FrozenSubs.Count() + s.ValidatorSubs.Count() +
		s.QualifierValidatorSubs.Count()
}

// SetLogMe / LogMe, SVSeen, IsPeer, SubscribeHeaders accessors — kept
// behind a small mutex since they're read/written from both the
// request-handling goroutines and the session logger supervisor.

func (s *Session) LogMe() bool {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	return s.flags.LogMe
}

func (s *Session) SetLogMe(v bool) {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	s.flags.LogMe = v
}

func (s *Session) SVSeen() bool {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	return s.flags.SVSeen
}

func (s *Session) SetSVSeen(v bool) {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	s.flags.SVSeen = v
}

func (s *Session) IsPeer() bool {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	return s.flags.IsPeer
}

func (s *Session) SetIsPeer(v bool) {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	s.flags.IsPeer = v
}

func (s *Session) SubscribeHeaders() bool {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	return s.flags.SubscribeHeaders
}

func (s *Session) SetSubscribeHeaders(v bool) {
	s.flags.mu.Lock()
	defer s.flags.mu.Unlock()
	s.flags.SubscribeHeaders = v
}

// InstallHandlers overlays a new handler table onto the session
// (spec.md §4.2 "later methods overlay earlier ones").
func (s *Session) InstallHandlers(table HandlerTable) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if s.Handlers == nil {
		s.Handlers = make(HandlerTable, len(table))
	}
	for method, fn := range table {
		s.Handlers[method] = fn
	}
}

// Handler looks up the handler for method, returning ok=false if
// unregistered.
func (s *Session) Handler(method string) (HandlerFunc, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	fn, ok := s.Handlers[method]
	return fn, ok
}

// WriteMessage serializes writes to the underlying connection; request
// handlers may complete (and thus write) concurrently up to
// max_concurrent, so writes need serialization even though each
// session's request arrival order is preserved (spec.md §5).
func (s *Session) WriteMessage(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.framer.WriteMessage(msg); err != nil {
		return err
	}
	s.SendSize.Add(int64(len(msg)))
	s.SendCount.Add(1)
	return nil
}

// ReadMessage reads the next raw JSON-RPC payload.
func (s *Session) ReadMessage() ([]byte, error) {
	msg, err := s.framer.ReadMessage()
	if err != nil {
		return nil, err
	}
	s.RecvSize.Add(int64(len(msg)))
	s.RecvCount.Add(1)
	return msg, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.framer.Close() }

// Throttled reports whether the session ended while throttled, i.e.
// max_concurrent fell below 0.8*initial_concurrent (spec.md §4.2
// connection_lost log condition).
func (s *Session) Throttled() bool {
	return float64(s.MaxConcurrent()) < 0.8*float64(s.InitialConcurrent)
}

// SentOverOneMB reports whether the session sent at least 1MB, the
// other connection_lost log condition (spec.md §4.2).
func (s *Session) SentOverOneMB() bool {
	return s.SendSize.Load() >= 1<<20
}
