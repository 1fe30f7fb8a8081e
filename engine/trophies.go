package engine

import (
	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
)

// TrophyKind tags the commemorative artifact minted for a side award.
type TrophyKind uint8

const (
	KindBurnChampion TrophyKind = iota + 1
	KindTopWager
	KindWagerDraw
	KindStakedDraw
)

func (k TrophyKind) Valid() bool {
	return k >= KindBurnChampion && k <= KindStakedDraw
}

func (k TrophyKind) String() string {
	switch k {
	case KindBurnChampion:
		return "burn_champion"
	case KindTopWager:
		return "top_wager"
	case KindWagerDraw:
		return "wager_draw"
	case KindStakedDraw:
		return "staked_draw"
	default:
		return "unknown"
	}
}

// TrophyBank mints side-award artifacts and settles their bonuses. The
// engine calls it during resolution only; implementations must be
// idempotent per (level, kind) because a crashed resolution may retry.
type TrophyBank interface {
	// Award mints an artifact for a recipient. The selector is the stream
	// word that picked them, or the round seed for positional awards.
	Award(recipient identity.ID, level uint32, kind TrophyKind, selector entropy.Word, bonus uint64) error

	// BurnPlaceholder consumes the artifact slot for a level when no
	// eligible recipient exists, keeping kind supplies level-aligned.
	BurnPlaceholder(level uint32, kind TrophyKind) error

	// SampleStaked picks one staked artifact holder. ok is false when
	// nothing is staked.
	SampleStaked(word entropy.Word) (identity.ID, bool, error)

	// RewardToken credits a bonus to an outstanding token's value.
	RewardToken(tokenID uint64, amount uint64, level uint32) error
}

// BondRegistry samples outstanding bond tokens for the scatter slice.
type BondRegistry interface {
	// SampleOwner picks one live bond. ok is false when none exist.
	SampleOwner(word entropy.Word) (tokenID uint64, owner identity.ID, ok bool, err error)
}
