package session

import (
	"context"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// manageServers is the admission-control supervisor (spec.md §4.1
// "_manage_servers"). It wakes on session_event; when |sessions| >=
// max_sessions it pauses non-RPC listeners, and resumes them once
// |sessions| <= floor(max_sessions*19/20) (the hysteresis watermark).
func (m *Manager) manageServers(ctx context.Context) error {
	low := m.cfg.LowWatermark()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.sessionEvent:
		}

		count := m.SessionCount()
		switch {
		case !m.paused.Load() && count >= m.cfg.MaxSessions:
			m.pauseExternalListeners()
		case m.paused.Load() && count <= low:
			if err := m.resumeExternalListeners(ctx); err != nil {
				m.logger.Error().Err(err).Msg("failed to resume listeners")
			}
		}
	}
}

func (m *Manager) pauseExternalListeners() {
	m.paused.Store(true)
	if m.metrics != nil {
		m.metrics.AdmissionPaused.Set(1)
	}
	for _, ln := range m.externalListeners() {
		ln.Close()
	}
	m.mu.Lock()
	kept := m.listeners[:0:0]
	for _, ln := range m.listeners {
		if ln.Kind() == rpc.KindRPC {
			kept = append(kept, ln)
		}
	}
	m.listeners = kept
	m.mu.Unlock()
	m.logger.Warn().Int("sessions", m.SessionCount()).Msg("admission: paused external listeners")
}

// externalListeners returns every non-RPC listener currently tracked.
func (m *Manager) externalListeners() []*rpc.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rpc.Listener
	for _, ln := range m.listeners {
		if ln.Kind() != rpc.KindRPC {
			out = append(out, ln)
		}
	}
	return out
}

func (m *Manager) resumeExternalListeners(ctx context.Context) error {
	m.paused.Store(false)
	if m.metrics != nil {
		m.metrics.AdmissionPaused.Set(0)
	}
	m.logger.Info().Int("sessions", m.SessionCount()).Msg("admission: resuming external listeners")
	return m.startExternalListeners(ctx)
}

// clearStaleSessions is the stale-session reaper (spec.md §4.3
// "_clear_stale_sessions"): sessions whose last_recv is older than
// session_timeout are closed with force_after=1s.
func (m *Manager) clearStaleSessions(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.StaleReaperPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-m.cfg.SessionTimeout)
		for _, s := range m.AllSessions() {
			if s.LastRecv().Before(cutoff) {
				go m.closeSessionWithForceAfter(s, time.Second)
			}
		}
	}
}

// handleChainReorgs increments reorg_count and clears tx_hashes_cache
// and merkle_cache whenever the block processor signals a reorg.
// History cache is deliberately NOT cleared here (spec.md §4.5).
func (m *Manager) handleChainReorgs(ctx context.Context) error {
	if m.bp == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.bp.BackedUp():
			m.reorgCount.Add(1)
			m.TxHashesCache.Clear()
			m.MerkleCache.Clear()
			m.estimatefee.Invalidate()
			if m.metrics != nil {
				m.metrics.ReorgsTotal.Inc()
			}
			m.logger.Info().Uint64("reorg_count", m.reorgCount.Load()).Msg("chain reorg handled")
		}
	}
}

// recalcConcurrency is the periodic recompute supervisor (spec.md
// §4.3 "_recalc_concurrency", period 300s): decays retained_cost,
// drops dead groups, and recomputes each session's decay rate and
// concurrency allowance.
func (m *Manager) recalcConcurrency(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RecalcPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		m.recalcOnce()
	}
}

func (m *Manager) recalcOnce() {
	periodSeconds := m.cfg.RecalcPeriod.Seconds()
	refund := periodSeconds * m.limits.HardLimit / 5000

	m.mu.Lock()
	for name, g := range m.groups {
		g.DecayRetainedCost(refund)
		if g.IsDead() {
			delete(m.groups, name)
		}
	}
	m.mu.Unlock()

	now := time.Now()
	for _, s := range m.AllSessions() {
		rate := m.limits.HardLimit / (10000 + 5*float64(s.SubCount()))
		s.Cost.SetDecayRate(rate)
		concurrency := s.Cost.Concurrency(m.ExtraCost(s), now)
		s.SetMaxConcurrent(concurrency)
		if concurrency == 0 {
			go m.closeSessionWithForceAfter(s, time.Second)
		}
	}
}

// logSessions periodically dumps a per-session summary, when
// log_sessions > 0 (spec.md §4.3 "_log_sessions").
func (m *Manager) logSessions(ctx context.Context) error {
	if m.cfg.LogSessions <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(m.cfg.LogSessions)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		m.logger.Info().
			Int("sessions", m.SessionCount()).
			Int("groups", len(m.AllGroups())).
			Int64("txs_sent", m.txsSent.Load()).
			Msg("session summary")
	}
}
