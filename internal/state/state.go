// Package state holds the ServerState/PlayerCount data model shared
// read-only across lazytran's components (spec.md §3) and the transition
// graph that the lifecycle actor (internal/lifecycle) is the sole writer
// of.
package state

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Server is one of the five lifecycle states (spec.md §3, §4.5).
type Server int32

const (
	Stopped Server = iota
	Starting
	Started
	Stopping
	Crashed
)

func (s Server) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// transitions is the allowed-edges graph from spec.md §4.5's table. Any
// transition not listed here is a programming error in the lifecycle
// actor, caught by ValidTransition / the actor's own assertion.
var transitions = map[Server][]Server{
	Stopped:  {Starting},
	Starting: {Started, Crashed, Stopped}, // Stopped: lockout mode forces Stopped from any state
	Started:  {Stopping, Crashed, Stopped},
	Stopping: {Stopped},
	Crashed:  {Starting, Stopped},
}

// ValidTransition reports whether from->to is an edge in spec.md §4.5's
// graph. Lockout mode is allowed to force any state to Stopped, which is
// why Stopped appears as a valid target everywhere.
func ValidTransition(from, to Server) bool {
	if to == Stopped {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Tracker holds the atomic ServerState + last-change timestamp + player
// count (spec.md §3's ServerState and PlayerCount types). Only the
// lifecycle actor (internal/lifecycle) calls SetState; every other
// component only reads.
type Tracker struct {
	server      atomic.Int32
	changedAt   atomic.Int64 // UnixNano of last SetState call
	players     atomic.Int32 // from Status Prober
	lobbyCount  atomic.Int32 // active lobby holds + forwards, per spec.md §3
	description atomic.String // last probed backend description, for motd.from_server
}

// NewTracker returns a Tracker initialized to Stopped, 0 players.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.server.Store(int32(Stopped))
	t.changedAt.Store(time.Now().UnixNano())
	return t
}

// Server returns the current state.
func (t *Tracker) Server() Server { return Server(t.server.Load()) }

// ChangedAt returns the timestamp of the last SetState call.
func (t *Tracker) ChangedAt() time.Time { return time.Unix(0, t.changedAt.Load()) }

// SetState overwrites the tracked state and timestamp. Callers outside
// internal/lifecycle must not call this; it does not itself validate
// transitions since the lifecycle actor is expected to consult
// ValidTransition before proposing one.
func (t *Tracker) SetState(s Server) {
	t.server.Store(int32(s))
	t.changedAt.Store(time.Now().UnixNano())
}

// SetProbedPlayers records the most recent Status Prober player count.
func (t *Tracker) SetProbedPlayers(n int) { t.players.Store(int32(n)) }

// SetProbedDescription records the backend's own last-probed status
// description, used by motd.from_server to relay it verbatim instead of
// a synthesized sleep/starting MOTD (spec.md §4.2, §6).
func (t *Tracker) SetProbedDescription(s string) {
	if s != "" {
		t.description.Store(s)
	}
}

// ProbedDescription returns the last-probed backend description, or ""
// if none has been observed yet.
func (t *Tracker) ProbedDescription() string { return t.description.Load() }

// AddLobbyHold increments/decrements the count of active lobby
// holds/forwards that should be considered when computing idleness
// (spec.md §3: "the greater of the two is authoritative").
func (t *Tracker) AddLobbyHold(delta int) { t.lobbyCount.Add(int32(delta)) }

// PlayerCount returns the authoritative player count: the greater of the
// last probed count and the number of active lobby holds/forwards
// (spec.md §3).
func (t *Tracker) PlayerCount() int {
	probed := t.players.Load()
	lobby := t.lobbyCount.Load()
	if lobby > probed {
		return int(lobby)
	}
	return int(probed)
}

// String renders the tracker for log lines.
func (t *Tracker) String() string {
	return fmt.Sprintf("%s (players=%d, since %s)", t.Server(), t.PlayerCount(), t.ChangedAt().Format(time.RFC3339))
}
