package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
)

func TestStateRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(t, Config{Clock: clock})
	mustContribute(t, e, 1, "alice", 2, 300)
	mustContribute(t, e, 1, "bob", 2, 100)
	mustContribute(t, e, 1, "carol", 3, 200)
	mustWager(t, e, 2, "dave", 4*leaderboard.WagerUnit)
	mustContribute(t, e, 2, "erin", 4, 40)
	seed := seedWinning(t, map[uint8]uint8{2: 0, 3: 0})
	if _, err := e.ResolveLevel(settlementSvc, 1, seed, 1000); err != nil {
		t.Fatalf("ResolveLevel: %v", err)
	}
	if _, err := e.Claim("alice", 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	restored := newTestEngine(t, Config{Clock: clock})
	if err := restored.Restore(e.State()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := restored.LastResolved(); got != 1 {
		t.Errorf("last resolved = %d, want 1", got)
	}
	if _, err := restored.Claim("alice", 1); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("alice after restore: %v, want ErrAlreadyClaimed", err)
	}
	want, _ := e.RoundInfo(1)
	got, ok := restored.RoundInfo(1)
	if !ok || !reflect.DeepEqual(got, want) {
		t.Errorf("round after restore = %+v, want %+v", got, want)
	}
	if rows := restored.Board(2); len(rows) != 1 || rows[0].ID != "dave" {
		t.Errorf("level 2 board after restore = %+v", rows)
	}
	entry, ok := restored.EntryOf("erin")
	if !ok || entry.Level != 2 || entry.Burn != 40 {
		t.Errorf("erin entry after restore = %+v ok=%v", entry, ok)
	}

	// The restored engine keeps settling where the original stopped.
	res, err := restored.Claim("carol", 1)
	if err != nil || res.Amount != 400 {
		t.Fatalf("carol claim after restore = %+v, %v", res, err)
	}
	mustContribute(t, restored, 2, "frank", 2, 10)
}

func TestState_DeterministicSerialization(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(t, Config{Clock: clock})
	for i := byte('a'); i <= 'm'; i++ {
		mustContribute(t, e, 1, identity.ID([]byte{i}), uint8(2+i%5), uint64(i)*7)
	}
	mustWager(t, e, 1, "dave", 3*leaderboard.WagerUnit)

	a, b := e.State(), e.State()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("successive snapshots differ:\n%+v\n%+v", a, b)
	}
}

func TestRestore_RejectsOversizedBoard(t *testing.T) {
	e := newTestEngine(t, Config{BoardSize: 2})
	s := State{Boards: []leaderboard.LevelRows{{
		Level: 1,
		Rows:  []leaderboard.Entry{{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1}},
	}}}
	if err := e.Restore(s); err == nil {
		t.Fatal("oversized board snapshot accepted")
	}
}
