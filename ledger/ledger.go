// Package ledger partitions the burn population into denominator × subbucket
// cells so one entropy word can settle a level without enumerating
// participants. Assignment is round-robin per denominator, which keeps cell
// rosters balanced; each cell carries an aggregate and a local top so
// settlement reads are O(1) per cell.
package ledger

import (
	"math"
	"sort"

	"github.com/PurgeGame/purge-settlement-engine/identity"
)

const (
	MinDenominator   = 2
	MaxDenominator   = 20
	DenominatorCount = MaxDenominator - MinDenominator + 1
)

// Entry tracks one participant's burn position for their current level.
// It resets implicitly when the participant first contributes to a new level.
type Entry struct {
	Level       uint32 `json:"level"`
	Denominator uint8  `json:"denominator"`
	Subbucket   uint8  `json:"subbucket"`
	RosterIndex uint32 `json:"rosterIndex"`
	Burn        uint64 `json:"burn"`
}

// Subbucket is one partition cell: an append-only roster of members, their
// aggregate burn, and the highest single contributor seen.
type Subbucket struct {
	Roster  []identity.ID `json:"roster"`
	Total   uint64        `json:"total"`
	TopID   identity.ID   `json:"topId,omitempty"`
	TopBurn uint64        `json:"topBurn,omitempty"`
}

type cellKey struct {
	level uint32
	denom uint8
	sub   uint8
}

type fillKey struct {
	level uint32
	denom uint8
}

// Ledger owns all burn entries and cells. Not safe for concurrent use; the
// engine serializes all access.
type Ledger struct {
	entries map[identity.ID]*Entry
	cells   map[cellKey]*Subbucket
	fill    map[fillKey]uint32
}

func New() *Ledger {
	return &Ledger{
		entries: make(map[identity.ID]*Entry),
		cells:   make(map[cellKey]*Subbucket),
		fill:    make(map[fillKey]uint32),
	}
}

// ClampDenominator forces a hint into [MinDenominator, MaxDenominator].
func ClampDenominator(hint uint8) uint8 {
	if hint < MinDenominator {
		return MinDenominator
	}
	if hint > MaxDenominator {
		return MaxDenominator
	}
	return hint
}

// Record books a burn event. A participant whose entry belongs to an earlier
// level (or who has no assignment yet) is assigned denominator = clamped
// hint and the next round-robin subbucket, and appended to that cell's
// roster. The amount is added to the entry's burn saturating at the
// representable maximum; the delta actually applied, not the raw amount,
// feeds the cell aggregate and the local-top check. Returns the assigned
// denominator and that delta.
func (l *Ledger) Record(level uint32, id identity.ID, hint uint8, amount uint64) (uint8, uint64) {
	e := l.entries[id]
	if e == nil {
		e = &Entry{}
		l.entries[id] = e
	}
	if e.Level != level || e.Denominator == 0 {
		d := ClampDenominator(hint)
		fk := fillKey{level: level, denom: d}
		n := l.fill[fk]
		sub := uint8(n % uint32(d))
		l.fill[fk] = n + 1
		cell := l.cell(level, d, sub)
		*e = Entry{
			Level:       level,
			Denominator: d,
			Subbucket:   sub,
			RosterIndex: uint32(len(cell.Roster)),
		}
		cell.Roster = append(cell.Roster, id)
	}
	burned := satAdd(e.Burn, amount)
	delta := burned - e.Burn
	e.Burn = burned
	cell := l.cell(level, e.Denominator, e.Subbucket)
	cell.Total = satAdd(cell.Total, delta)
	if e.Burn > cell.TopBurn {
		cell.TopBurn = e.Burn
		cell.TopID = id
	}
	return e.Denominator, delta
}

// EntryOf returns a copy of a participant's entry.
func (l *Ledger) EntryOf(id identity.ID) (Entry, bool) {
	e := l.entries[id]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Cell returns the subbucket at (level, denominator, index), or nil if it
// was never filled. Callers must not mutate it.
func (l *Ledger) Cell(level uint32, denom, sub uint8) *Subbucket {
	return l.cells[cellKey{level: level, denom: denom, sub: sub}]
}

// Fill returns how many participants were ever assigned to a denominator
// within a level.
func (l *Ledger) Fill(level uint32, denom uint8) uint32 {
	return l.fill[fillKey{level: level, denom: denom}]
}

// Levels returns the levels with any recorded assignment, ascending.
func (l *Ledger) Levels() []uint32 {
	seen := make(map[uint32]struct{})
	for k := range l.fill {
		seen[k.level] = struct{}{}
	}
	out := make([]uint32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PruneLevel drops every entry, cell, and fill counter belonging to a level.
func (l *Ledger) PruneLevel(level uint32) {
	for id, e := range l.entries {
		if e.Level == level {
			delete(l.entries, id)
		}
	}
	for k := range l.cells {
		if k.level == level {
			delete(l.cells, k)
		}
	}
	for k := range l.fill {
		if k.level == level {
			delete(l.fill, k)
		}
	}
}

func (l *Ledger) cell(level uint32, denom, sub uint8) *Subbucket {
	k := cellKey{level: level, denom: denom, sub: sub}
	c := l.cells[k]
	if c == nil {
		c = &Subbucket{}
		l.cells[k] = c
	}
	return c
}

func satAdd(a, b uint64) uint64 {
	s := a + b
	if s < a {
		return math.MaxUint64
	}
	return s
}
