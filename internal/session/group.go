package session

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// SessionGroup aggregates cost across a set of sessions sharing an IP
// prefix or a time slice (spec.md §3). It outlives any one member:
// retained_cost preserves a departed session's contribution until it
// decays (§4.3 recalc supervisor).
type SessionGroup struct {
	Name   string
	Weight float64

	mu           sync.Mutex
	sessions     map[uint64]*Session
	retainedCost float64
}

// NewSessionGroup constructs an empty group.
func NewSessionGroup(name string, weight float64) *SessionGroup {
	return &SessionGroup{Name: name, Weight: weight, sessions: make(map[uint64]*Session)}
}

// Add inserts a session into the group.
func (g *SessionGroup) Add(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = s
}

// Remove deletes a session from the group and folds its current cost
// into retained_cost (spec.md §4.1 "remove_session").
func (g *SessionGroup) Remove(s *Session, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, s.ID)
	g.retainedCost += s.Cost.Cost(now)
}

// SessionCost sums the live cost of every member session.
func (g *SessionGroup) SessionCost(now time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total float64
	for _, s := range g.sessions {
		total += s.Cost.Cost(now)
	}
	return total
}

// Cost returns retained_cost + the sum of member session costs
// (spec.md §3 "cost() = retained_cost + Σ s.cost").
func (g *SessionGroup) Cost(now time.Time) float64 {
	return g.RetainedCost() + g.SessionCost(now)
}

// RetainedCost returns the group's residual cost from departed
// sessions.
func (g *SessionGroup) RetainedCost() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retainedCost
}

// DecayRetainedCost applies the periodic recalc supervisor's linear
// decay: retained_cost := max(0, retained_cost - period*hard_limit/5000)
// (spec.md §4.3).
func (g *SessionGroup) DecayRetainedCost(amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retainedCost -= amount
	if g.retainedCost < 0 {
		g.retainedCost = 0
	}
}

// IsDead reports whether this group has no members and zero retained
// cost, and should be garbage-collected (spec.md §3 "destroyed when
// retained_cost == 0 and sessions is empty").
func (g *SessionGroup) IsDead() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions) == 0 && g.retainedCost == 0
}

// SessionCount returns the number of live member sessions.
func (g *SessionGroup) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Sessions returns a snapshot of the group's current member sessions.
func (g *SessionGroup) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	return out
}

// ipGroupName derives the /24 (IPv4) or /48 (IPv6) prefix group name
// for remoteAddr. Private addresses produce no group (empty string,
// ok=false); an unparseable address maps to "unknown_addr" (spec.md
// §3 "Group membership policy").
func ipGroupName(remoteAddr string) (name string, ok bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "unknown_addr", true
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return "", false
	}

	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2]), true
	}

	v6 := ip.To16()
	if v6 == nil {
		return "unknown_addr", true
	}
	groups := make([]string, 3)
	for i := 0; i < 3; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", v6[2*i], v6[2*i+1])
	}
	return strings.Join(groups, ":"), true
}

// timeSliceName derives the 5-minute time-slice group name:
// "t{floor((session.start - manager.start)/300)}" (spec.md §3).
func timeSliceName(sessionStart, managerStart time.Time) string {
	elapsed := int64(sessionStart.Sub(managerStart).Seconds())
	slice := elapsed / 300
	return fmt.Sprintf("t%d", slice)
}
