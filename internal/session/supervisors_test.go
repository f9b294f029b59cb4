package session

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/config"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

func newAdmissionTestManager(t *testing.T, maxSessions int) *Manager {
	t.Helper()
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	m.cfg = &config.Config{MaxSessions: maxSessions}
	return m
}

func waitForPaused(t *testing.T, m *Manager, want bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.paused.Load() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for paused=%v", want)
}

// Scenario A (spec.md §4.1/§8): admission pauses external listeners at
// max_sessions and only resumes at the floor(max_sessions*19/20)
// hysteresis watermark, not as soon as the count dips below max.
func TestAdmissionHysteresisPauseAndResume(t *testing.T) {
	m := newAdmissionTestManager(t, 20) // low watermark = floor(20*19/20) = 19

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.manageServers(ctx) }()

	for i := uint64(1); i <= 20; i++ {
		newTestSession(m, i, rpc.KindTCP)
	}
	m.sessionEvent <- struct{}{}
	waitForPaused(t, m, true)

	// Dropping to 19 sessions (the watermark) must resume.
	m.RemoveSession(m.AllSessions()[0])
	m.sessionEvent <- struct{}{}
	waitForPaused(t, m, false)

	cancel()
	<-done
}

// With a wider hysteresis band, dropping below max_sessions but still
// above the watermark leaves admission paused.
func TestAdmissionHysteresisWideBandStaysPaused(t *testing.T) {
	m := newAdmissionTestManager(t, 100) // watermark = floor(100*19/20) = 95

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.manageServers(ctx) }()

	for i := uint64(1); i <= 100; i++ {
		newTestSession(m, i, rpc.KindTCP)
	}
	m.sessionEvent <- struct{}{}
	waitForPaused(t, m, true)

	// Drop to 98 sessions: below max_sessions (100) but still above the
	// watermark (95) -> must remain paused.
	for i := uint64(0); i < 2; i++ {
		m.RemoveSession(m.AllSessions()[0])
	}
	m.sessionEvent <- struct{}{}
	time.Sleep(20 * time.Millisecond)
	if !m.paused.Load() {
		t.Fatal("expected admission to remain paused within the hysteresis band")
	}

	// Drop to 95 (the watermark itself) -> must resume.
	for len(m.AllSessions()) > 95 {
		m.RemoveSession(m.AllSessions()[0])
	}
	m.sessionEvent <- struct{}{}
	waitForPaused(t, m, false)

	cancel()
	<-done
}
