package engine

import (
	"sort"
	"time"

	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/ledger"
)

// ClaimRecord flattens one claimed flag for persistence.
type ClaimRecord struct {
	Level uint32      `json:"level"`
	ID    identity.ID `json:"id"`
}

// State is the engine's full persistent image. Caller wiring is boot
// configuration and deliberately absent: a restart re-wires from the
// environment instead of trusting a snapshot.
type State struct {
	SavedAt      time.Time               `json:"savedAt"`
	LastResolved uint32                  `json:"lastResolved"`
	Rounds       []Round                 `json:"rounds"`
	Claims       []ClaimRecord           `json:"claims"`
	Boards       []leaderboard.LevelRows `json:"boards"`
	Ledger       ledger.Snapshot         `json:"ledger"`
}

// State captures a consistent snapshot of everything Restore needs. Slices
// are sorted so successive snapshots of identical state serialize
// identically.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		SavedAt:      e.clock.Now(),
		LastResolved: e.lastResolved,
		Rounds:       make([]Round, 0, len(e.rounds)),
		Claims:       make([]ClaimRecord, 0, len(e.claims)),
		Boards:       e.board.Snapshot(),
		Ledger:       e.burns.Snapshot(),
	}
	for _, r := range e.rounds {
		s.Rounds = append(s.Rounds, *r)
	}
	sort.Slice(s.Rounds, func(i, j int) bool { return s.Rounds[i].Level < s.Rounds[j].Level })
	for k := range e.claims {
		s.Claims = append(s.Claims, ClaimRecord{Level: k.level, ID: k.id})
	}
	sort.Slice(s.Claims, func(i, j int) bool {
		if s.Claims[i].Level != s.Claims[j].Level {
			return s.Claims[i].Level < s.Claims[j].Level
		}
		return s.Claims[i].ID < s.Claims[j].ID
	})
	return s
}

// Restore replaces all engine state with a snapshot.
func (e *Engine) Restore(s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.board.Restore(s.Boards); err != nil {
		return err
	}
	e.burns = ledger.FromSnapshot(s.Ledger)
	e.rounds = make(map[uint32]*Round, len(s.Rounds))
	for _, r := range s.Rounds {
		round := r
		e.rounds[r.Level] = &round
	}
	e.claims = make(map[claimKey]struct{}, len(s.Claims))
	for _, c := range s.Claims {
		e.claims[claimKey{level: c.Level, id: c.ID}] = struct{}{}
	}
	e.lastResolved = s.LastResolved
	return nil
}
