package session

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/config"
	"github.com/adred-codev/indexer-sessiond/internal/logging"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// Serve runs the manager's full lifecycle (spec.md §4.1 "serve"):
// start the RPC listener, wait for ready, refresh hsub_results at the
// DB height, start external listeners, spawn supervisors. Session
// params are already set at construction via Limits. Serve does not
// hand the notifier to the BP; the embedding process obtains it from
// NotifyCallback. Returns when ctx is cancelled, Shutdown is called,
// or a supervisor returns a non-cancellation error.
func (m *Manager) Serve(ctx context.Context, ready <-chan struct{}) error {
	defer m.closeEverything()

	if err := m.startRPCListener(ctx); err != nil {
		return err
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := m.RefreshHsubResults(ctx, m.db.StateHeight()); err != nil {
		m.logger.Warn().Err(err).Msg("initial hsub_results refresh failed")
	}

	if err := m.startExternalListeners(ctx); err != nil {
		return err
	}

	return m.runSupervisors(ctx)
}

func (m *Manager) startRPCListener(ctx context.Context) error {
	for _, svc := range m.services {
		if !svc.IsRPC() {
			continue
		}
		return m.startListener(ctx, svc)
	}
	return nil
}

func (m *Manager) startExternalListeners(ctx context.Context) error {
	for _, svc := range m.services {
		if svc.IsRPC() {
			continue
		}
		if err := m.startListener(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startListener(ctx context.Context, svc config.Service) error {
	var tlsCfg *tls.Config
	if svc.Protocol == string(rpc.KindSSL) || svc.Protocol == string(rpc.KindWSS) {
		var err error
		tlsCfg, err = rpc.TLSConfig(m.cfg.SSLCertFile, m.cfg.SSLKeyFile)
		if err != nil {
			return err
		}
	}

	ln, err := rpc.Listen(svc.Addr(), rpc.Kind(svc.Protocol), tlsCfg, m.cfg.MaxRecv, m.logger, m.handleAccepted)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, ln)
	m.mu.Unlock()

	go func() {
		defer logging.RecoverPanic(m.logger, "listener:"+svc.Addr(), nil)
		if err := ln.Serve(ctx); err != nil {
			m.logger.Error().Err(err).Str("addr", svc.Addr()).Msg("listener stopped")
		}
	}()
	return nil
}

// handleAccepted wires an accepted connection into a new Session and
// runs its request loop (spec.md §4.2).
func (m *Manager) handleAccepted(ctx context.Context, a rpc.Accepted) {
	id := m.NextID()
	startCost := 5.0
	if a.Kind == rpc.KindRPC {
		startCost = 0
	}
	s := NewSession(id, a.Kind, a.RemoteAddr, a.Framer, m.limits, startCost, time.Now())
	s.manager = m
	if a.Kind == rpc.KindRPC {
		s.InstallHandlers(LocalRPCHandlers())
	} else {
		s.InstallHandlers(ElectrumXHandlersMin())
	}

	m.AddSession(s)
	defer m.RemoveSession(s)
	defer m.logConnectionLost(s)

	m.RunRequestLoop(ctx, s)
}

func (m *Manager) logConnectionLost(s *Session) {
	if s.Throttled() || s.SentOverOneMB() {
		m.logger.Info().
			Uint64("session_id", s.ID).
			Bool("throttled", s.Throttled()).
			Int64("send_size", s.SendSize.Load()).
			Msg("session closed")
	}
}

// closeEverything closes all listeners sequentially, then every
// session concurrently with force_after=1s (spec.md §4.1 "Shutdown").
func (m *Manager) closeEverything() {
	m.mu.Lock()
	listeners := append([]*rpc.Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("listener close error")
		}
	}

	var wg sync.WaitGroup
	for _, s := range m.AllSessions() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			m.closeSessionWithForceAfter(s, time.Second)
		}(s)
	}
	wg.Wait()
}

func (m *Manager) closeSessionWithForceAfter(s *Session, forceAfter time.Duration) {
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(forceAfter):
		s.Close()
	}
}

// runSupervisors spawns the background supervisors and waits for the
// first to return a non-cancellation error, or for ctx to be done or
// Shutdown to be called
// (spec.md §4.1 "If any supervisor returns non-cancelled, its result
// is propagated").
func (m *Manager) runSupervisors(ctx context.Context) error {
	supervisors := []func(context.Context) error{
		m.manageServers,
		m.clearStaleSessions,
		m.handleChainReorgs,
		m.recalcConcurrency,
		m.logSessions,
	}

	errCh := make(chan error, len(supervisors))
	var wg sync.WaitGroup
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Shutdown closes shutdownCh; stop the supervisors when it does.
	go func() {
		select {
		case <-m.shutdownCh:
			cancel()
		case <-subCtx.Done():
		}
	}()

	for _, sup := range supervisors {
		wg.Add(1)
		go func(sup func(context.Context) error) {
			defer wg.Done()
			defer logging.RecoverPanic(m.logger, "supervisor", nil)
			errCh <- sup(subCtx)
		}(sup)
	}

	go func() { wg.Wait(); close(errCh) }()

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			return err
		}
	}
	return nil
}
