package ledger

import "fmt"

// DefaultAuditBatch bounds how many roster entries one audit step visits.
const DefaultAuditBatch = 512

// AuditCursor marks resumable progress through a level's cells. A zero
// cursor starts from the first denominator; PartialSum carries the
// recomputed aggregate of a cell that a batch boundary split.
type AuditCursor struct {
	Denominator uint8  `json:"denominator"`
	Subbucket   uint8  `json:"subbucket"`
	Offset      uint32 `json:"offset"`
	PartialSum  uint64 `json:"partialSum"`
}

// Done reports whether the cursor has passed the last denominator.
func (c AuditCursor) Done() bool {
	return c.Denominator > MaxDenominator
}

type Mismatch struct {
	Denominator uint8  `json:"denominator"`
	Subbucket   uint8  `json:"subbucket"`
	Detail      string `json:"detail"`
}

type AuditReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// AuditStep walks up to batch roster entries of a level, verifying that
// every roster slot points back at an entry assigned to that slot and that
// each cell's stored aggregate matches the sum of its members' burns. The
// audit is only meaningful for a level still accruing activity: pruned
// levels have nothing to check. Returns the advanced cursor; resuming with
// it continues exactly where the previous step stopped.
func (l *Ledger) AuditStep(level uint32, cur AuditCursor, batch int) (AuditCursor, AuditReport) {
	if batch <= 0 {
		batch = DefaultAuditBatch
	}
	if cur.Denominator < MinDenominator {
		cur = AuditCursor{Denominator: MinDenominator}
	}
	var rep AuditReport
	for !cur.Done() && rep.Checked < batch {
		if cur.Subbucket >= cur.Denominator {
			cur = AuditCursor{Denominator: cur.Denominator + 1}
			continue
		}
		cell := l.Cell(level, cur.Denominator, cur.Subbucket)
		if cell == nil {
			cur.Subbucket++
			cur.Offset = 0
			cur.PartialSum = 0
			continue
		}
		for cur.Offset < uint32(len(cell.Roster)) && rep.Checked < batch {
			id := cell.Roster[cur.Offset]
			e := l.entries[id]
			switch {
			case e == nil:
				rep.Mismatches = append(rep.Mismatches, Mismatch{
					Denominator: cur.Denominator,
					Subbucket:   cur.Subbucket,
					Detail:      fmt.Sprintf("roster slot %d: no entry for %s", cur.Offset, id),
				})
			case e.Level != level || e.Denominator != cur.Denominator ||
				e.Subbucket != cur.Subbucket || e.RosterIndex != cur.Offset:
				rep.Mismatches = append(rep.Mismatches, Mismatch{
					Denominator: cur.Denominator,
					Subbucket:   cur.Subbucket,
					Detail: fmt.Sprintf("roster slot %d: %s assigned elsewhere (level %d denom %d sub %d idx %d)",
						cur.Offset, id, e.Level, e.Denominator, e.Subbucket, e.RosterIndex),
				})
			default:
				cur.PartialSum = satAdd(cur.PartialSum, e.Burn)
			}
			cur.Offset++
			rep.Checked++
		}
		if cur.Offset < uint32(len(cell.Roster)) {
			break
		}
		if cur.PartialSum != cell.Total {
			rep.Mismatches = append(rep.Mismatches, Mismatch{
				Denominator: cur.Denominator,
				Subbucket:   cur.Subbucket,
				Detail:      fmt.Sprintf("aggregate %d, roster sums to %d", cell.Total, cur.PartialSum),
			})
		}
		cur.Subbucket++
		cur.Offset = 0
		cur.PartialSum = 0
	}
	return cur, rep
}
