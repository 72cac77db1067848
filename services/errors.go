package services

import (
	"errors"
	"fmt"

	"spicysweet/store"
)

// Validation rejections: malformed or out-of-place input. No state is
// mutated; callers must not treat these as transport failures.
var ErrRejected = errors.New("submission rejected")

// Contention aborts: the transaction predicate failed because state moved
// underneath it. All wrap store.ErrAbort so callers can classify them with
// store.IsAbort and retry only while their intent is still valid.
var (
	ErrStaleRound      = fmt.Errorf("%w: stale round", store.ErrAbort)
	ErrAlreadyAnswered = fmt.Errorf("%w: already answered", store.ErrAbort)
	ErrAlreadyResolved = fmt.Errorf("%w: round already resolved", store.ErrAbort)
	ErrNotYourTurn     = fmt.Errorf("%w: not your turn", store.ErrAbort)
	ErrWrongPhase      = fmt.Errorf("%w: wrong phase", store.ErrAbort)
)

// IsNoOp reports whether err is an expected silent outcome (validation
// rejection or contention abort) rather than a failure.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrRejected) || store.IsAbort(err)
}
