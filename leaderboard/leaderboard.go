// Package leaderboard maintains the per-level top-K wager board. Scores are
// whole-coin, saturating representations of raw base-unit amounts; the board
// only ever moves an entry on a strict improvement, so equal scores keep
// their existing order.
package leaderboard

import (
	"fmt"
	"math"
	"sort"

	"github.com/PurgeGame/purge-settlement-engine/identity"
)

// WagerUnit converts raw base-unit amounts into whole-coin scores.
const WagerUnit = 1_000_000_000

// Entry is one ranked row.
type Entry struct {
	ID    identity.ID `json:"id"`
	Score uint32      `json:"score"`
}

// LevelRows is the board for one level, used by snapshots.
type LevelRows struct {
	Level uint32  `json:"level"`
	Rows  []Entry `json:"rows"`
}

// Board holds the top-K entries per level, sorted descending by score.
// Not safe for concurrent use; the engine serializes all access.
type Board struct {
	k      int
	levels map[uint32][]Entry
}

func New(k int) (*Board, error) {
	if k < 1 {
		return nil, fmt.Errorf("board size must be at least 1, got %d", k)
	}
	return &Board{k: k, levels: make(map[uint32][]Entry)}, nil
}

// ScoreOf scales a raw amount to a board score, clamped at the maximum.
func ScoreOf(raw uint64) uint32 {
	s := raw / WagerUnit
	if s > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(s)
}

// Record books a wager total for a participant. An existing entry moves only
// on a strictly greater score, bubbling toward rank 0 by adjacent swaps. A
// new entry inserts in sorted position while the board has room; on a full
// board it replaces the lowest entry only when strictly exceeding it.
func (b *Board) Record(level uint32, id identity.ID, raw uint64) {
	score := ScoreOf(raw)
	rows := b.levels[level]

	for i := range rows {
		if rows[i].ID != id {
			continue
		}
		if score <= rows[i].Score {
			return
		}
		rows[i].Score = score
		for i > 0 && rows[i].Score > rows[i-1].Score {
			rows[i], rows[i-1] = rows[i-1], rows[i]
			i--
		}
		return
	}

	if len(rows) < b.k {
		pos := len(rows)
		for pos > 0 && score > rows[pos-1].Score {
			pos--
		}
		rows = append(rows, Entry{})
		copy(rows[pos+1:], rows[pos:])
		rows[pos] = Entry{ID: id, Score: score}
		b.levels[level] = rows
		return
	}

	last := len(rows) - 1
	if score <= rows[last].Score {
		return
	}
	rows[last] = Entry{ID: id, Score: score}
	for i := last; i > 0 && rows[i].Score > rows[i-1].Score; i-- {
		rows[i], rows[i-1] = rows[i-1], rows[i]
	}
}

// Resolve returns an ordered copy of the board for a level.
func (b *Board) Resolve(level uint32) []Entry {
	rows := b.levels[level]
	out := make([]Entry, len(rows))
	copy(out, rows)
	return out
}

// Clear drops all entries for a level.
func (b *Board) Clear(level uint32) {
	delete(b.levels, level)
}

// Levels returns the levels currently holding entries, ascending.
func (b *Board) Levels() []uint32 {
	out := make([]uint32, 0, len(b.levels))
	for v := range b.levels {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot flattens the board for persistence, sorted by level.
func (b *Board) Snapshot() []LevelRows {
	out := make([]LevelRows, 0, len(b.levels))
	for _, level := range b.Levels() {
		rows := make([]Entry, len(b.levels[level]))
		copy(rows, b.levels[level])
		out = append(out, LevelRows{Level: level, Rows: rows})
	}
	return out
}

// Restore replaces the board contents from a snapshot. Rows beyond the
// board's size are rejected rather than silently truncated.
func (b *Board) Restore(levels []LevelRows) error {
	fresh := make(map[uint32][]Entry, len(levels))
	for _, lr := range levels {
		if len(lr.Rows) > b.k {
			return fmt.Errorf("level %d snapshot has %d rows, board size is %d", lr.Level, len(lr.Rows), b.k)
		}
		rows := make([]Entry, len(lr.Rows))
		copy(rows, lr.Rows)
		fresh[lr.Level] = rows
	}
	b.levels = fresh
	return nil
}
