// Command simulate drives a synthetic population through the settlement
// engine in-process: contributions and wagers per level, a resolution from
// a derived entropy word, claims, and a finalize sweep. Everything derives
// from one master seed, so a run is reproducible.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/PurgeGame/purge-settlement-engine/engine"
	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/logger"
)

const (
	simActivity   = identity.ID("sim-activity")
	simSettlement = identity.ID("sim-settlement")
)

func main() {
	levels := pflag.Uint32("levels", 5, "number of levels to simulate")
	players := pflag.Int("players", 50, "population size")
	pool := pflag.Uint64("pool", 1_000_000, "payout pool per level in base units")
	maxBurn := pflag.Uint64("max-burn", 10_000, "largest single contribution")
	boardSize := pflag.Int("board-size", 6, "leaderboard size")
	seedHex := pflag.String("seed", "4242424242424242424242424242424242424242424242424242424242424242", "master seed as 64 hex digits")
	verbose := pflag.BoolP("verbose", "v", false, "log every booking")
	pflag.Parse()

	if err := run(*levels, *players, *pool, *maxBurn, *boardSize, *seedHex, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "simulate failed: %v\n", err)
		os.Exit(1)
	}
}

func run(levels uint32, players int, pool, maxBurn uint64, boardSize int, seedHex string, verbose bool) error {
	master, err := entropy.WordFromHex(seedHex)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{BoardSize: boardSize, Log: logger.New(verbose)})
	if err != nil {
		return err
	}
	if err := eng.Wire(simActivity, simSettlement); err != nil {
		return err
	}

	ids := make([]identity.ID, players)
	for i := range ids {
		var raw [32]byte
		binary.BigEndian.PutUint32(raw[:4], uint32(i))
		ids[i] = identity.FromBytes(raw)
	}

	sim := entropy.NewStream(master)
	var totalPaid, totalSwept, refunds uint64
	for level := uint32(1); level <= levels; level++ {
		for _, id := range ids {
			amount := sim.Next()%maxBurn + 1
			hint := uint8(sim.Next() % 24)
			if _, err := eng.RecordContribution(simActivity, level, id, hint, amount); err != nil {
				return fmt.Errorf("level %d contribution: %w", level, err)
			}
			if sim.Next()%4 == 0 {
				wager := (sim.Next()%100 + 1) * leaderboard.WagerUnit
				if _, err := eng.RecordWager(simActivity, level, id, wager); err != nil {
					return fmt.Errorf("level %d wager: %w", level, err)
				}
			}
		}

		res, err := eng.ResolveLevel(simSettlement, level, sim.NextWord(), pool)
		if err != nil {
			return fmt.Errorf("resolve level %d: %w", level, err)
		}
		if res.Refunded {
			refunds++
			fmt.Printf("level %d: burn=%d refunded pool=%d\n", level, res.TotalBurn, res.RefundAmount)
			continue
		}

		winners, paid := 0, uint64(0)
		for _, id := range ids {
			if _, err := eng.Claimable(id, level); err != nil {
				continue
			}
			winners++
			if sim.Next()%4 == 0 {
				continue // leaves the share unclaimed for the sweep
			}
			claim, err := eng.Claim(id, level)
			if err != nil {
				return fmt.Errorf("claim level %d: %w", level, err)
			}
			paid += claim.Amount
		}
		swept, err := eng.FinalizeRound(simSettlement, level)
		if err != nil {
			return fmt.Errorf("finalize level %d: %w", level, err)
		}
		totalPaid += paid
		totalSwept += swept
		fmt.Printf("level %d: burn=%d winners=%d paid=%d swept=%d champion=%s\n",
			level, res.TotalBurn, winners, paid, swept, res.Champion.Short())
	}

	fmt.Printf("simulated %d levels with %d players: paid=%d swept=%d refunds=%d\n",
		levels, players, totalPaid, totalSwept, refunds)
	return nil
}
