package engine

import "errors"

var (
	// ErrInvalidKind rejects a trophy kind outside the known set.
	ErrInvalidKind = errors.New("engine: invalid trophy kind")

	// ErrClaimRoundInactive rejects a claim against a level with no active
	// claim round, whether never resolved, refunded, or finalized.
	ErrClaimRoundInactive = errors.New("engine: claim round not active")

	// ErrAlreadyClaimed rejects a second claim for the same level.
	ErrAlreadyClaimed = errors.New("engine: already claimed")

	// ErrNotAWinner rejects a claim that fails any eligibility check.
	ErrNotAWinner = errors.New("engine: not a winner")

	// ErrAlreadyWired rejects a second wiring of the caller identities.
	ErrAlreadyWired = errors.New("engine: callers already wired")

	// ErrNotActivityCaller rejects activity from anyone but the wired
	// activity source. Raised for all callers while unwired.
	ErrNotActivityCaller = errors.New("engine: caller is not the activity source")

	// ErrNotSettlementCaller rejects settlement operations from anyone but
	// the wired settlement authority. Raised for all callers while unwired.
	ErrNotSettlementCaller = errors.New("engine: caller is not the settlement authority")

	// ErrLevelSettled rejects activity for, or a second resolution of, a
	// level at or below the last resolved one.
	ErrLevelSettled = errors.New("engine: level already settled")
)
