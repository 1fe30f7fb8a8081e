package engine

import (
	"math/bits"

	"github.com/PurgeGame/purge-settlement-engine/identity"
)

// ClaimResult reports a committed payout.
type ClaimResult struct {
	Level  uint32 `json:"level"`
	Amount uint64 `json:"amount"`
	Pool   uint64 `json:"pool"`
	Paid   uint64 `json:"paid"`
}

// Claim pays a winner their proportional share of a level's pool and marks
// them claimed. Checks run fail-closed in a fixed order, so a denied claim
// reports the earliest failing condition. Claims never expire while the
// round stays active.
func (e *Engine) Claim(id identity.ID, level uint32) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	round := e.rounds[level]
	if round == nil || !round.Active {
		return ClaimResult{}, ErrClaimRoundInactive
	}
	key := claimKey{level: level, id: id}
	if _, dup := e.claims[key]; dup {
		return ClaimResult{}, ErrAlreadyClaimed
	}
	amount, err := e.claimableLocked(round, id, level)
	if err != nil {
		return ClaimResult{}, err
	}
	e.claims[key] = struct{}{}
	round.Paid += amount
	e.log.Info("claim paid", "level", level, "id", id.Short(), "amount", amount)
	return ClaimResult{Level: level, Amount: amount, Pool: round.Pool, Paid: round.Paid}, nil
}

// Claimable previews a claim without committing anything.
func (e *Engine) Claimable(id identity.ID, level uint32) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	round := e.rounds[level]
	if round == nil || !round.Active {
		return 0, ErrClaimRoundInactive
	}
	if _, dup := e.claims[claimKey{level: level, id: id}]; dup {
		return 0, ErrAlreadyClaimed
	}
	return e.claimableLocked(round, id, level)
}

// claimableLocked runs the winner checks and computes the payout share,
// clamped so cumulative payouts never exceed the pool. Rounding dust from
// the floor division stays with the pool.
func (e *Engine) claimableLocked(round *Round, id identity.ID, level uint32) (uint64, error) {
	entry, ok := e.burns.EntryOf(id)
	if !ok || entry.Level != level || entry.Denominator == 0 || entry.Burn == 0 {
		return 0, ErrNotAWinner
	}
	cell := e.burns.Cell(level, entry.Denominator, entry.Subbucket)
	if cell == nil || entry.RosterIndex >= uint32(len(cell.Roster)) || cell.Roster[entry.RosterIndex] != id {
		return 0, ErrNotAWinner
	}
	if entry.Subbucket != round.WinningSubbucket(entry.Denominator) {
		return 0, ErrNotAWinner
	}
	amount := mulDiv(round.Pool, entry.Burn, round.TotalBurn)
	if rem := round.Pool - round.Paid; amount > rem {
		amount = rem
	}
	return amount, nil
}

// FinalizeRound closes a level's claim round and sweeps its ledger data and
// claim flags. Returns the unclaimed remainder for the caller to redirect.
func (e *Engine) FinalizeRound(caller identity.ID, level uint32) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireSettlement(caller); err != nil {
		return 0, err
	}
	round := e.rounds[level]
	if round == nil || !round.Active {
		return 0, ErrClaimRoundInactive
	}
	remaining := round.Pool - round.Paid
	delete(e.rounds, level)
	e.burns.PruneLevel(level)
	for k := range e.claims {
		if k.level == level {
			delete(e.claims, k)
		}
	}
	e.log.Info("round finalized", "level", level, "unclaimed", remaining)
	return remaining, nil
}

// RoundInfo returns a copy of the claim round for a level.
func (e *Engine) RoundInfo(level uint32) (Round, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rounds[level]
	if r == nil {
		return Round{}, false
	}
	return *r, true
}

// mulDiv returns floor(a*b/den) with a 128-bit intermediate product.
// Callers keep b <= den, which guarantees the quotient fits in 64 bits.
func mulDiv(a, b, den uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, den)
	return q
}
