package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// SessionReferences resolves a list of session-ID/group-name/special
// tokens (spec.md §4.6) into the concrete sessions, groups, and
// recognized special strings they name; tokens matching neither are
// reported as unknown (ported from the original's
// `_session_references`).
type SessionReferences struct {
	Sessions []*Session
	Groups   []*SessionGroup
	Specials map[string]bool
	Unknown  []string
}

// resolveSessionReferences classifies each token: all-digits -> session
// ID lookup; else lowercased and checked against specialStrings, then
// group names; anything matching neither is unknown.
func (m *Manager) resolveSessionReferences(items []string, specialStrings map[string]bool) SessionReferences {
	refs := SessionReferences{Specials: make(map[string]bool)}
	seenSessions := make(map[uint64]bool)
	seenGroups := make(map[string]bool)

	for _, item := range items {
		if isAllDigits(item) {
			id, err := strconv.ParseUint(item, 10, 64)
			if err == nil {
				if s, ok := m.SessionByID(id); ok {
					if !seenSessions[s.ID] {
						seenSessions[s.ID] = true
						refs.Sessions = append(refs.Sessions, s)
					}
					continue
				}
			}
			refs.Unknown = append(refs.Unknown, item)
			continue
		}

		lower := strings.ToLower(item)
		if specialStrings[lower] {
			refs.Specials[lower] = true
			continue
		}
		if g, ok := m.GroupByName(lower); ok {
			if !seenGroups[lower] {
				seenGroups[lower] = true
				refs.Groups = append(refs.Groups, g)
			}
			continue
		}
		refs.Unknown = append(refs.Unknown, item)
	}
	return refs
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LocalRPCHandlers returns the operator command table installed on
// `rpc`-protocol sessions (spec.md §4.6: add_peer, daemon_url,
// disconnect, getinfo, groups, log, peers, query, reorg, sessions,
// stop).
func LocalRPCHandlers() HandlerTable {
	return HandlerTable{
		"add_peer":   rpcAddPeer,
		"daemon_url": rpcDaemonURL,
		"disconnect": rpcDisconnect,
		"getinfo":    rpcGetInfo,
		"groups":     rpcGroups,
		"log":        rpcLog,
		"peers":      rpcPeers,
		"query":      rpcQuery,
		"reorg":      rpcReorg,
		"sessions":   rpcSessions,
		"stop":       rpcStop,
	}
}

func rpcAddPeer(s *Session, params []byte) (any, error) {
	var args struct{ RealName string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if err := s.manager.peers.AddLocalRPCPeer(context.Background(), args.RealName); err != nil {
		return nil, err
	}
	return fmt.Sprintf("peer '%s' added", args.RealName), nil
}

func rpcDaemonURL(s *Session, params []byte) (any, error) {
	var args struct{ DaemonURL string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	s.manager.daemon.SetURL(args.DaemonURL)
	return fmt.Sprintf("now using daemon at %s", s.manager.daemon.LoggedURL()), nil
}

func rpcDisconnect(s *Session, params []byte) (any, error) {
	var args struct{ SessionIDs []string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	m := s.manager
	refs := m.resolveSessionReferences(args.SessionIDs, map[string]bool{"all": true})

	var result []string
	targets := map[uint64]*Session{}
	if refs.Specials["all"] {
		for _, sess := range m.AllSessions() {
			targets[sess.ID] = sess
		}
		result = append(result, "disconnecting all sessions")
	} else {
		for _, sess := range refs.Sessions {
			targets[sess.ID] = sess
			result = append(result, fmt.Sprintf("disconnecting session %d", sess.ID))
		}
		for _, g := range refs.Groups {
			result = append(result, fmt.Sprintf("disconnecting group %s", g.Name))
			for _, sess := range g.Sessions() {
				targets[sess.ID] = sess
			}
		}
	}
	for _, item := range refs.Unknown {
		result = append(result, "unknown: "+item)
	}

	for _, sess := range targets {
		go m.closeSessionWithForceAfter(sess, time.Second)
	}
	return result, nil
}

func rpcLog(s *Session, params []byte) (any, error) {
	var args struct{ SessionIDs []string `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	m := s.manager
	refs := m.resolveSessionReferences(args.SessionIDs, map[string]bool{"all": true, "none": true, "new": true})

	var result []string
	add := func(text string, v bool) {
		if v {
			result = append(result, "logging "+text)
		} else {
			result = append(result, "not logging "+text)
		}
	}

	if refs.Specials["all"] {
		for _, sess := range m.AllSessions() {
			sess.SetLogMe(true)
		}
		m.logNewDefault.Store(true)
		result = append(result, "logging all sessions")
	}
	if refs.Specials["none"] {
		for _, sess := range m.AllSessions() {
			sess.SetLogMe(false)
		}
		m.logNewDefault.Store(false)
		result = append(result, "logging no sessions")
	}
	if refs.Specials["new"] {
		v := !m.logNewDefault.Load()
		m.logNewDefault.Store(v)
		add("new sessions", v)
	}

	touched := map[uint64]bool{}
	for _, sess := range refs.Sessions {
		v := !sess.LogMe()
		sess.SetLogMe(v)
		touched[sess.ID] = true
		add(fmt.Sprintf("session %d", sess.ID), v)
	}
	for _, g := range refs.Groups {
		for _, sess := range g.Sessions() {
			if touched[sess.ID] {
				continue
			}
			v := !sess.LogMe()
			sess.SetLogMe(v)
			touched[sess.ID] = true
			add(fmt.Sprintf("session %d", sess.ID), v)
		}
	}
	for _, item := range refs.Unknown {
		result = append(result, "unknown: "+item)
	}
	return result, nil
}

func rpcGetInfo(s *Session, params []byte) (any, error) {
	m := s.manager
	return map[string]any{
		"sessions":    m.SessionCount(),
		"groups":      len(m.AllGroups()),
		"paused":      m.paused.Load(),
		"reorg_count": m.ReorgCount(),
		"txs_sent":    m.txsSent.Load(),
		"uptime_sec":  time.Since(m.startTime).Seconds(),
	}, nil
}

func rpcGroups(s *Session, params []byte) (any, error) {
	now := time.Now()
	var out []map[string]any
	for _, g := range s.manager.AllGroups() {
		out = append(out, map[string]any{
			"name":          g.Name,
			"sessions":      g.SessionCount(),
			"retained_cost": g.RetainedCost(),
			"cost":          g.Cost(now),
		})
	}
	return out, nil
}

func rpcPeers(s *Session, params []byte) (any, error) {
	return s.manager.peers.RPCData(), nil
}

// rpcQuery reports history/UTXO/balance for a raw hashX hex string
// (ported from the original's rpc_query; the original's address/script
// parsing is a Non-goal here, so only direct hashX hex is accepted).
func rpcQuery(s *Session, params []byte) (any, error) {
	var args struct {
		Items []string `json:"0"`
		Limit int      `json:"1"`
	}
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 1000
	}

	m := s.manager
	var lines []string
	for _, arg := range args.Items {
		hashX, err := parseHexBytes(arg)
		if err != nil {
			lines = append(lines, "unrecognized: "+arg)
			continue
		}
		lines = append(lines, "hashX: "+arg)

		history, err := m.db.LimitedHistory(context.Background(), hashX, args.Limit)
		if err != nil {
			lines = append(lines, fmt.Sprintf("history error: %v", err))
		} else if len(history) == 0 {
			lines = append(lines, "No history found")
		} else {
			for n, e := range history {
				lines = append(lines, fmt.Sprintf("History #%d: height %d tx_hash %s", n, e.Height, hexTxHash(e.TxHash)))
			}
		}

		utxos, err := m.db.AllUTXOs(context.Background(), hashX, "")
		if err != nil {
			lines = append(lines, fmt.Sprintf("utxo error: %v", err))
			continue
		}
		if len(utxos) == 0 {
			lines = append(lines, "No UTXOs found")
			continue
		}
		var balance uint64
		for n, u := range utxos {
			if n >= args.Limit {
				break
			}
			lines = append(lines, fmt.Sprintf("UTXO #%d: tx_hash %s tx_pos %d height %d value %d",
				n+1, hexTxHash(u.TxHash), u.TxPos, u.Height, u.Value))
			balance += u.Value
		}
		lines = append(lines, fmt.Sprintf("Balance: %d", balance))
	}
	return lines, nil
}

func rpcReorg(s *Session, params []byte) (any, error) {
	var args struct{ Count int `json:"0"` }
	if err := bindParams(params, &args); err != nil {
		return nil, err
	}
	if err := nonNegativeInt(args.Count); err != nil {
		return nil, err
	}
	if err := s.manager.bp.ForceChainReorg(context.Background(), args.Count); err != nil {
		return nil, rpc.NewError(rpc.BadRequest, "still catching up with daemon")
	}
	return fmt.Sprintf("scheduled a reorg of %d blocks", args.Count), nil
}

func rpcSessions(s *Session, params []byte) (any, error) {
	now := time.Now()
	var out []map[string]any
	for _, sess := range s.manager.AllSessions() {
		out = append(out, map[string]any{
			"id":             sess.ID,
			"kind":           sess.Kind,
			"remote_addr":    sess.RemoteAddr,
			"cost":           sess.Cost.Cost(now),
			"max_concurrent": sess.MaxConcurrent(),
			"client":         sess.ClientName,
		})
	}
	return out, nil
}

func rpcStop(s *Session, params []byte) (any, error) {
	s.manager.Shutdown()
	return "stopping", nil
}
