package ledger

import (
	"sort"

	"github.com/PurgeGame/purge-settlement-engine/identity"
)

// The in-memory maps use struct keys, so persistence flattens them into
// sorted record slices. Sorting keeps snapshot JSON stable across saves.

type EntryRecord struct {
	ID    identity.ID `json:"id"`
	Entry Entry       `json:"entry"`
}

type CellRecord struct {
	Level       uint32    `json:"level"`
	Denominator uint8     `json:"denominator"`
	Subbucket   uint8     `json:"subbucket"`
	Cell        Subbucket `json:"cell"`
}

type FillRecord struct {
	Level       uint32 `json:"level"`
	Denominator uint8  `json:"denominator"`
	Count       uint32 `json:"count"`
}

type Snapshot struct {
	Entries []EntryRecord `json:"entries"`
	Cells   []CellRecord  `json:"cells"`
	Fill    []FillRecord  `json:"fill"`
}

func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Entries: make([]EntryRecord, 0, len(l.entries)),
		Cells:   make([]CellRecord, 0, len(l.cells)),
		Fill:    make([]FillRecord, 0, len(l.fill)),
	}
	for id, e := range l.entries {
		s.Entries = append(s.Entries, EntryRecord{ID: id, Entry: *e})
	}
	for k, c := range l.cells {
		cell := *c
		cell.Roster = append([]identity.ID(nil), c.Roster...)
		s.Cells = append(s.Cells, CellRecord{
			Level:       k.level,
			Denominator: k.denom,
			Subbucket:   k.sub,
			Cell:        cell,
		})
	}
	for k, n := range l.fill {
		s.Fill = append(s.Fill, FillRecord{Level: k.level, Denominator: k.denom, Count: n})
	}
	sortRecords(&s)
	return s
}

func FromSnapshot(s Snapshot) *Ledger {
	l := New()
	for _, r := range s.Entries {
		e := r.Entry
		l.entries[r.ID] = &e
	}
	for _, r := range s.Cells {
		cell := r.Cell
		cell.Roster = append([]identity.ID(nil), r.Cell.Roster...)
		l.cells[cellKey{level: r.Level, denom: r.Denominator, sub: r.Subbucket}] = &cell
	}
	for _, r := range s.Fill {
		l.fill[fillKey{level: r.Level, denom: r.Denominator}] = r.Count
	}
	return l
}

func sortRecords(s *Snapshot) {
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].ID < s.Entries[j].ID })
	sort.Slice(s.Cells, func(i, j int) bool {
		a, b := s.Cells[i], s.Cells[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Denominator != b.Denominator {
			return a.Denominator < b.Denominator
		}
		return a.Subbucket < b.Subbucket
	})
	sort.Slice(s.Fill, func(i, j int) bool {
		a, b := s.Fill[i], s.Fill[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Denominator < b.Denominator
	})
}
