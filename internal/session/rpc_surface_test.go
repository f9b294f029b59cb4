package session

import (
	"testing"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

type discardFramer struct{}

func (discardFramer) ReadMessage() ([]byte, error) { return nil, nil }
func (discardFramer) WriteMessage([]byte) error    { return nil }
func (discardFramer) Close() error                 { return nil }

func newTestSession(m *Manager, id uint64, kind rpc.Kind) *Session {
	s := NewSession(id, kind, "203.0.113.1:4000", discardFramer{}, m.limits, 0, time.Now())
	s.manager = m
	m.AddSession(s)
	return s
}

func TestResolveSessionReferencesByID(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s1 := newTestSession(m, 1, rpc.KindTCP)
	s2 := newTestSession(m, 2, rpc.KindTCP)

	refs := m.resolveSessionReferences([]string{"1", "2", "99"}, map[string]bool{"all": true})

	if len(refs.Sessions) != 2 {
		t.Fatalf("expected 2 resolved sessions, got %d", len(refs.Sessions))
	}
	got := map[uint64]bool{}
	for _, s := range refs.Sessions {
		got[s.ID] = true
	}
	if !got[s1.ID] || !got[s2.ID] {
		t.Fatal("expected both sessions 1 and 2 resolved")
	}
	if len(refs.Unknown) != 1 || refs.Unknown[0] != "99" {
		t.Fatalf("expected '99' reported unknown, got %v", refs.Unknown)
	}
}

func TestResolveSessionReferencesSpecialsAndGroups(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	m.groups["mygroup"] = NewSessionGroup("mygroup", 1.0)

	refs := m.resolveSessionReferences([]string{"ALL", "MyGroup", "bogus-name"}, map[string]bool{"all": true, "none": true})

	if !refs.Specials["all"] {
		t.Fatal("expected 'ALL' to resolve to the 'all' special (case-insensitive)")
	}
	if len(refs.Groups) != 1 || refs.Groups[0].Name != "mygroup" {
		t.Fatalf("expected group 'mygroup' resolved, got %v", refs.Groups)
	}
	if len(refs.Unknown) != 1 || refs.Unknown[0] != "bogus-name" {
		t.Fatalf("expected 'bogus-name' reported unknown, got %v", refs.Unknown)
	}
}

func TestRPCGetInfoReportsSessionCount(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	newTestSession(m, 1, rpc.KindTCP)
	newTestSession(m, 2, rpc.KindRPC)

	s := newTestSession(m, 3, rpc.KindRPC)
	result, err := rpcGetInfo(s, nil)
	if err != nil {
		t.Fatalf("rpcGetInfo: %v", err)
	}
	info := result.(map[string]any)
	if info["sessions"].(int) != 3 {
		t.Fatalf("expected 3 sessions reported, got %v", info["sessions"])
	}
}
