package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/cache"
	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/config"
	"github.com/adred-codev/indexer-sessiond/internal/cost"
	"github.com/adred-codev/indexer-sessiond/internal/metrics"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
	"github.com/rs/zerolog"
)

// HsubResults is the cached "headers.subscribe" reply, refreshed
// whenever the notified height changes (spec.md §4.1 step 4,
// `_refresh_hsub_results`).
type HsubResults struct {
	Hex    string
	Height int32
}

// Manager owns the session registry, the group table, the shared
// caches, the listeners, and the background supervisors (spec.md §2
// item 6, §4.1). It is the arena sessions are borrowed from; sessions
// hold it by plain pointer (see Session doc comment).
type Manager struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Registry
	limits  cost.Limits

	db      collaborators.DB
	mempool collaborators.Mempool
	daemon  collaborators.Daemon
	bp      collaborators.BP
	peers   collaborators.PeerManager

	startTime time.Time
	nextID    atomic.Uint64

	mu            sync.Mutex
	sessions      map[uint64]*Session
	sessionGroups map[uint64][]*SessionGroup
	groups        map[string]*SessionGroup

	HistoryCache  *cache.LRU[string, []collaborators.TxEntry]
	TxHashesCache *cache.LRU[int32, [][32]byte]
	MerkleCache   *cache.LRU[int32, *MerkleAccelerator]
	estimatefee   *estimatefeeCache

	reorgCount     atomic.Uint64
	notifiedHeight atomic.Int32
	hsubResults    atomic.Pointer[HsubResults]

	methodCounts sync.Map // method -> *atomic.Uint64
	txsSent      atomic.Int64

	listeners []*rpc.Listener
	services  []config.Service
	paused    atomic.Bool

	sessionEvent chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	logNewDefault atomic.Bool
}

// New constructs a Manager. Listeners are not started until Serve runs
// (spec.md §4.1 "serve").
func New(cfg *config.Config, logger zerolog.Logger, m *metrics.Registry,
	db collaborators.DB, mempool collaborators.Mempool, daemon collaborators.Daemon,
	bp collaborators.BP, peers collaborators.PeerManager) (*Manager, error) {

	services, err := cfg.ParseServices()
	if err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}

	limits := cost.Limits{
		SoftLimit:         cfg.CostSoftLimit,
		HardLimit:         cfg.CostHardLimit,
		InitialConcurrent: cfg.InitialConcurrent,
		BandwidthPerByte:  cfg.BandwidthCostPerKB / 1000,
		RequestSleep:      time.Duration(cfg.RequestSleepMS) * time.Millisecond,
		RequestTimeout:    cfg.RequestTimeout,
	}

	mgr := &Manager{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		limits:        limits,
		db:            db,
		mempool:       mempool,
		daemon:        daemon,
		bp:            bp,
		peers:         peers,
		startTime:     time.Now(),
		sessions:      make(map[uint64]*Session),
		sessionGroups: make(map[uint64][]*SessionGroup),
		groups:        make(map[string]*SessionGroup),
		HistoryCache:  cache.New[string, []collaborators.TxEntry](cache.DefaultCapacity),
		TxHashesCache: cache.New[int32, [][32]byte](cache.DefaultCapacity),
		MerkleCache:   cache.New[int32, *MerkleAccelerator](cache.DefaultCapacity),
		services:      services,
		sessionEvent:  make(chan struct{}, 1),
		shutdownCh:    make(chan struct{}),
	}
	mgr.estimatefee = newEstimatefeeCache(daemon)
	return mgr, nil
}

// Limits returns the class-level cost parameters built from
// configuration when the manager was constructed.
func (m *Manager) Limits() cost.Limits { return m.limits }

// triggerSessionEvent wakes the admission supervisor (spec.md §4.1
// "add_session"/"remove_session": trigger session_event").
func (m *Manager) triggerSessionEvent() {
	select {
	case m.sessionEvent <- struct{}{}:
	default:
	}
}

// AddSession registers a new session, computing its group memberships
// (spec.md §4.1 "add_session").
func (m *Manager) AddSession(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s

	var groups []*SessionGroup
	if s.Kind != rpc.KindRPC {
		if name, ok := ipGroupName(s.RemoteAddr); ok && name != "" {
			g := m.getOrCreateGroupLocked(name, 1.0)
			g.Add(s)
			groups = append(groups, g)
		}
		tsName := timeSliceName(s.StartTime, m.startTime)
		g := m.getOrCreateGroupLocked(tsName, 0.03)
		g.Add(s)
		groups = append(groups, g)
	}
	m.sessionGroups[s.ID] = groups
	m.mu.Unlock()

	m.triggerSessionEvent()
	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
		m.metrics.SessionsTotal.Inc()
	}
}

// RemoveSession deregisters a session, folding its cost into every
// group's retained_cost (spec.md §4.1 "remove_session"; invariant #2).
func (m *Manager) RemoveSession(s *Session) {
	now := time.Now()
	m.mu.Lock()
	delete(m.sessions, s.ID)
	groups := m.sessionGroups[s.ID]
	delete(m.sessionGroups, s.ID)
	m.mu.Unlock()

	for _, g := range groups {
		g.Remove(s, now)
	}

	m.triggerSessionEvent()
	if m.metrics != nil {
		m.metrics.SessionsActive.Dec()
	}
}

func (m *Manager) getOrCreateGroupLocked(name string, weight float64) *SessionGroup {
	if g, ok := m.groups[name]; ok {
		return g
	}
	g := NewSessionGroup(name, weight)
	m.groups[name] = g
	return g
}

// SessionCount returns the number of currently registered sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExtraCost returns Σ over groups g containing session: (g.cost() -
// session.cost)*g.weight. A session missing from the registry
// contributes 0 — the invariant that must hold under a racing removal
// (spec.md §4.3, §5).
func (m *Manager) ExtraCost(s *Session) float64 {
	m.mu.Lock()
	groups, ok := m.sessionGroups[s.ID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	now := time.Now()
	sessionCost := s.Cost.Cost(now)
	var total float64
	for _, g := range groups {
		total += (g.Cost(now) - sessionCost) * g.Weight
	}
	return total
}

// NextID allocates the next monotonic session id.
func (m *Manager) NextID() uint64 { return m.nextID.Add(1) }

// IncrementMethodCount bumps the process-wide per-method call counter
// (spec.md §4.2 "Per-method call count is incremented on the manager").
func (m *Manager) IncrementMethodCount(method string) {
	v, _ := m.methodCounts.LoadOrStore(method, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
	if m.metrics != nil {
		m.metrics.MethodCalls.WithLabelValues(method).Inc()
	}
}

// MethodCounts returns a snapshot of per-method call counts.
func (m *Manager) MethodCounts() map[string]uint64 {
	out := make(map[string]uint64)
	m.methodCounts.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// ReorgCount returns the current reorg generation counter.
func (m *Manager) ReorgCount() uint64 { return m.reorgCount.Load() }

// HsubResults returns the current cached headers.subscribe reply.
func (m *Manager) HsubResults() *HsubResults { return m.hsubResults.Load() }

// RefreshHsubResults recomputes hsub_results from the DB's current tip
// (spec.md §4.1 step 4, `_refresh_hsub_results`): height is clamped to
// min(height, db.state.height).
func (m *Manager) RefreshHsubResults(ctx context.Context, height int32) error {
	dbHeight := m.db.StateHeight()
	if height > dbHeight {
		height = dbHeight
	}
	raw, err := m.db.RawHeader(ctx, height)
	if err != nil {
		return &collaborators.DBError{Err: err}
	}
	m.hsubResults.Store(&HsubResults{Hex: hex.EncodeToString(raw), Height: height})
	return nil
}

// Shutdown signals the manager to begin graceful shutdown (spec.md
// §4.1 "Shutdown").
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() { close(m.shutdownCh) })
}

// Done reports whether shutdown has been signalled.
func (m *Manager) Done() <-chan struct{} { return m.shutdownCh }

// AllSessions returns a snapshot of every registered session.
func (m *Manager) AllSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// AllGroups returns a snapshot of every group (live or retaining cost).
func (m *Manager) AllGroups() []*SessionGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SessionGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out
}

// SessionByID looks up a single session.
func (m *Manager) SessionByID(id uint64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GroupByName looks up a single group.
func (m *Manager) GroupByName(name string) (*SessionGroup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[name]
	return g, ok
}
