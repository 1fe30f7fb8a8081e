package engine

import (
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/ledger"
)

// Bonus slices in basis points of the round pool. Bonuses settle from the
// trophy bank's treasury; the claim pool itself stays whole.
const (
	championBonusBps = 500
	stakedBonusBps   = 250
	scatterSliceBps  = 500
	bpsScale         = 10_000

	scatterSamples = 4
)

// Round is an open claim window for a resolved level.
type Round struct {
	Level      uint32                         `json:"level"`
	Active     bool                           `json:"active"`
	Pool       uint64                         `json:"pool"`
	Paid       uint64                         `json:"paid"`
	TotalBurn  uint64                         `json:"totalBurn"`
	Winning    [ledger.DenominatorCount]uint8 `json:"winning"`
	Seed       entropy.Word                   `json:"seed"`
	ResolvedAt time.Time                      `json:"resolvedAt"`
}

// WinningSubbucket returns the drawn subbucket for a denominator.
func (r *Round) WinningSubbucket(denom uint8) uint8 {
	return r.Winning[denom-ledger.MinDenominator]
}

// Resolution reports everything a resolution decided. Replaying the same
// level with the same seed and pool yields an identical Resolution.
type Resolution struct {
	Level         uint32                         `json:"level"`
	TotalBurn     uint64                         `json:"totalBurn"`
	Winning       [ledger.DenominatorCount]uint8 `json:"winning"`
	Refunded      bool                           `json:"refunded"`
	RefundAmount  uint64                         `json:"refundAmount,omitempty"`
	Champion      identity.ID                    `json:"champion,omitempty"`
	ChampionBonus uint64                         `json:"championBonus,omitempty"`
	TopWager      identity.ID                    `json:"topWager,omitempty"`
	WagerDraw     identity.ID                    `json:"wagerDraw,omitempty"`
	StakedDraw    identity.ID                    `json:"stakedDraw,omitempty"`
	StakedBonus   uint64                         `json:"stakedBonus,omitempty"`
	ScatterTokens []uint64                       `json:"scatterTokens,omitempty"`
	ScatterShare  uint64                         `json:"scatterShare,omitempty"`
}

// ResolveLevel settles a running level from one entropy word. Each
// denominator's winning subbucket is drawn at salt d; the burn total across
// winning cells funds proportional claims. A level with no winning burn
// refunds the whole pool and opens no claim round. Side awards go out
// before the round commits.
func (e *Engine) ResolveLevel(caller identity.ID, level uint32, seed entropy.Word, pool uint64) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireSettlement(caller); err != nil {
		return Resolution{}, err
	}
	if level <= e.lastResolved {
		return Resolution{}, ErrLevelSettled
	}

	stream := entropy.NewStream(seed)
	var winning [ledger.DenominatorCount]uint8
	var total uint64
	for d := uint8(ledger.MinDenominator); d <= ledger.MaxDenominator; d++ {
		sub := uint8(stream.At(uint64(d)) % uint64(d))
		winning[d-ledger.MinDenominator] = sub
		if cell := e.burns.Cell(level, d, sub); cell != nil {
			total = satAdd(total, cell.Total)
		}
	}

	res := Resolution{Level: level, TotalBurn: total, Winning: winning}

	// Champion is the single highest burn across every cell of the level,
	// winning or losing. Ties keep the first find in cell order.
	var champion identity.ID
	var championBurn uint64
	for d := uint8(ledger.MinDenominator); d <= ledger.MaxDenominator; d++ {
		for sub := uint8(0); sub < d; sub++ {
			cell := e.burns.Cell(level, d, sub)
			if cell != nil && cell.TopBurn > championBurn {
				championBurn = cell.TopBurn
				champion = cell.TopID
			}
		}
	}

	e.awardBoard(level, seed, stream, &res)

	if total == 0 {
		// Nobody can claim, so the pool goes back where it came from.
		// Bonuses only settle on funded rounds: the champion slot burns
		// even when losing cells hold burn.
		res.Refunded = true
		res.RefundAmount = pool
		e.trophyBurn(level, KindBurnChampion)
		e.finishResolve(level)
		e.log.Info("level refunded", "level", level, "pool", pool)
		return res, nil
	}

	if champion != identity.None {
		bonus := mulDiv(pool, championBonusBps, bpsScale)
		res.Champion = champion
		res.ChampionBonus = bonus
		e.trophyAward(champion, level, KindBurnChampion, seed, bonus)
	} else {
		e.trophyBurn(level, KindBurnChampion)
	}

	// The sample word is consumed even with no bank wired so replays stay
	// salt-aligned.
	stakedWord := stream.NextWord()
	if e.trophies != nil {
		id, ok, err := e.trophies.SampleStaked(stakedWord)
		switch {
		case err != nil:
			e.log.Warn("staked sample failed", "level", level, "error", err)
		case ok:
			bonus := mulDiv(pool, stakedBonusBps, bpsScale)
			res.StakedDraw = id
			res.StakedBonus = bonus
			e.trophyAward(id, level, KindStakedDraw, stakedWord, bonus)
		}
	}

	// Scatter: sample up to scatterSamples distinct bonds and split the
	// slice evenly among them.
	var tokens []uint64
	for i := 0; i < scatterSamples; i++ {
		w := stream.NextWord()
		if e.bonds == nil {
			continue
		}
		tokenID, owner, ok, err := e.bonds.SampleOwner(w)
		if err != nil {
			e.log.Warn("bond sample failed", "level", level, "error", err)
			continue
		}
		if !ok || slices.Contains(tokens, tokenID) {
			continue
		}
		tokens = append(tokens, tokenID)
		e.log.Debug("bond sampled", "level", level, "token", tokenID, "owner", owner.Short())
	}
	if len(tokens) > 0 && e.trophies != nil {
		share := mulDiv(pool, scatterSliceBps, bpsScale) / uint64(len(tokens))
		res.ScatterTokens = tokens
		res.ScatterShare = share
		for _, tok := range tokens {
			if err := e.trophies.RewardToken(tok, share, level); err != nil {
				e.log.Warn("bond reward failed", "level", level, "token", tok, "error", err)
			}
		}
	}

	e.rounds[level] = &Round{
		Level:      level,
		Active:     true,
		Pool:       pool,
		TotalBurn:  total,
		Winning:    winning,
		Seed:       seed,
		ResolvedAt: e.clock.Now(),
	}
	e.finishResolve(level)
	e.log.Info("level resolved",
		"level", level, "pool", pool, "totalBurn", total, "champion", champion.Short())
	return res, nil
}

// awardBoard settles the wager-board trophies. The draw word is consumed
// before any board inspection so every resolution path uses the same salts.
func (e *Engine) awardBoard(level uint32, seed entropy.Word, stream *entropy.Stream, res *Resolution) {
	word := stream.NextWord()
	roll := binary.BigEndian.Uint64(word[:8])
	rows := e.board.Resolve(level)

	if len(rows) > 0 && rows[0].Score > 0 {
		res.TopWager = rows[0].ID
		e.trophyAward(rows[0].ID, level, KindTopWager, seed, 0)
	} else {
		e.trophyBurn(level, KindTopWager)
	}

	if id, ok := pickWeighted(rows, roll); ok {
		res.WagerDraw = id
		e.trophyAward(id, level, KindWagerDraw, word, 0)
	} else {
		e.trophyBurn(level, KindWagerDraw)
	}
}

// pickWeighted draws one board row with probability proportional to score.
func pickWeighted(rows []leaderboard.Entry, roll uint64) (identity.ID, bool) {
	var total uint64
	for _, r := range rows {
		total += uint64(r.Score)
	}
	if total == 0 {
		return identity.None, false
	}
	target := roll % total
	var cum uint64
	for _, r := range rows {
		if r.Score == 0 {
			continue
		}
		cum += uint64(r.Score)
		if target < cum {
			return r.ID, true
		}
	}
	return rows[len(rows)-1].ID, true
}

// finishResolve advances the settlement cursor, clears the consumed board,
// and prunes ledger levels that can no longer pay a claim.
func (e *Engine) finishResolve(level uint32) {
	e.lastResolved = level
	e.board.Clear(level)
	for _, lv := range e.burns.Levels() {
		if lv > level {
			continue
		}
		if r := e.rounds[lv]; r != nil && r.Active {
			continue
		}
		e.burns.PruneLevel(lv)
		e.board.Clear(lv)
	}
}

func (e *Engine) trophyAward(id identity.ID, level uint32, kind TrophyKind, selector entropy.Word, bonus uint64) {
	if e.trophies == nil {
		return
	}
	if err := e.trophies.Award(id, level, kind, selector, bonus); err != nil {
		e.log.Warn("trophy award failed", "level", level, "kind", kind.String(), "id", id.Short(), "error", err)
	}
}

func (e *Engine) trophyBurn(level uint32, kind TrophyKind) {
	if e.trophies == nil {
		return
	}
	if err := e.trophies.BurnPlaceholder(level, kind); err != nil {
		e.log.Warn("placeholder burn failed", "level", level, "kind", kind.String(), "error", err)
	}
}

func satAdd(a, b uint64) uint64 {
	s := a + b
	if s < a {
		return math.MaxUint64
	}
	return s
}
