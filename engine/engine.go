// Package engine is the settlement core for the level cycle: it books wager
// and burn activity while a level runs, resolves the level from one entropy
// word into a claim round, and pays proportional claims against the round's
// pool. All state lives in memory behind one mutex; persistence is the
// caller's job via State and Restore.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/ledger"
)

const DefaultBoardSize = 6

// Config carries construction options. Zero values fall back to defaults;
// nil collaborators disable their awards.
type Config struct {
	BoardSize int
	Clock     clockwork.Clock
	Log       *slog.Logger
	Trophies  TrophyBank
	Bonds     BondRegistry
}

type claimKey struct {
	level uint32
	id    identity.ID
}

// Engine serializes every operation behind one mutex. Collaborator calls
// happen inside the critical section, after validation and before the state
// commit, so a failed commit never follows a skipped side effect.
type Engine struct {
	mu sync.Mutex

	board        *leaderboard.Board
	burns        *ledger.Ledger
	rounds       map[uint32]*Round
	claims       map[claimKey]struct{}
	lastResolved uint32

	wired            bool
	activityCaller   identity.ID
	settlementCaller identity.ID

	clock    clockwork.Clock
	log      *slog.Logger
	trophies TrophyBank
	bonds    BondRegistry
}

func New(cfg Config) (*Engine, error) {
	if cfg.BoardSize == 0 {
		cfg.BoardSize = DefaultBoardSize
	}
	board, err := leaderboard.New(cfg.BoardSize)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Engine{
		board:    board,
		burns:    ledger.New(),
		rounds:   make(map[uint32]*Round),
		claims:   make(map[claimKey]struct{}),
		clock:    cfg.Clock,
		log:      cfg.Log.With("component", "engine"),
		trophies: cfg.Trophies,
		bonds:    cfg.Bonds,
	}, nil
}

// Wire binds the two authorized caller identities. One shot: callers are
// boot configuration, never snapshot state, so a restart re-wires from the
// environment rather than trusting a stale snapshot.
func (e *Engine) Wire(activity, settlement identity.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wired {
		return ErrAlreadyWired
	}
	if activity == identity.None || settlement == identity.None {
		return fmt.Errorf("engine: caller identities must be set")
	}
	e.activityCaller = activity
	e.settlementCaller = settlement
	e.wired = true
	e.log.Info("callers wired", "activity", activity.Short(), "settlement", settlement.Short())
	return nil
}

func (e *Engine) requireActivity(caller identity.ID) error {
	if !e.wired || caller != e.activityCaller {
		return ErrNotActivityCaller
	}
	return nil
}

func (e *Engine) requireSettlement(caller identity.ID) error {
	if !e.wired || caller != e.settlementCaller {
		return ErrNotSettlementCaller
	}
	return nil
}

// RecordContribution books a burn for a participant on a running level and
// returns their updated ledger entry. The denominator hint only matters on
// the participant's first contribution to the level.
func (e *Engine) RecordContribution(caller identity.ID, level uint32, id identity.ID, hint uint8, amount uint64) (ledger.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActivity(caller); err != nil {
		return ledger.Entry{}, err
	}
	if level <= e.lastResolved {
		return ledger.Entry{}, ErrLevelSettled
	}
	denom, delta := e.burns.Record(level, id, hint, amount)
	entry, _ := e.burns.EntryOf(id)
	e.log.Debug("contribution booked",
		"level", level, "id", id.Short(), "denominator", denom, "applied", delta, "burn", entry.Burn)
	return entry, nil
}

// WagerResult reports how a wager landed on the level's board.
type WagerResult struct {
	Score   uint32 `json:"score"`
	OnBoard bool   `json:"onBoard"`
	Rank    int    `json:"rank"`
}

// RecordWager books a participant's cumulative wager total for a running
// level. Rank is the current board position, -1 when off the board.
func (e *Engine) RecordWager(caller identity.ID, level uint32, id identity.ID, amount uint64) (WagerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActivity(caller); err != nil {
		return WagerResult{}, err
	}
	if level <= e.lastResolved {
		return WagerResult{}, ErrLevelSettled
	}
	e.board.Record(level, id, amount)
	res := WagerResult{Score: leaderboard.ScoreOf(amount), Rank: -1}
	for i, row := range e.board.Resolve(level) {
		if row.ID == id {
			res.OnBoard = true
			res.Rank = i
			break
		}
	}
	e.log.Debug("wager booked", "level", level, "id", id.Short(), "score", res.Score, "rank", res.Rank)
	return res, nil
}

// Board returns the current top-K rows for a level.
func (e *Engine) Board(level uint32) []leaderboard.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Resolve(level)
}

// EntryOf returns a participant's current ledger entry.
func (e *Engine) EntryOf(id identity.ID) (ledger.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.burns.EntryOf(id)
}

// LastResolved returns the highest settled level.
func (e *Engine) LastResolved() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResolved
}

// AuditStep advances an integrity scan over a level's ledger cells.
func (e *Engine) AuditStep(level uint32, cur ledger.AuditCursor, batch int) (ledger.AuditCursor, ledger.AuditReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.burns.AuditStep(level, cur, batch)
}
