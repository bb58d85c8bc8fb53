package permissions

import (
	"context"
	"time"
)

// Outcome is the three-valued result of a position check. Indeterminate
// means the answer cannot currently be determined (guild not cached, no
// binding configured) and is never conflated with an explicit denial;
// callers choose fail-open or fail-closed per call site.
type Outcome int

const (
	OutcomeDenied Outcome = iota
	OutcomeIndeterminate
	OutcomeGranted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGranted:
		return "granted"
	case OutcomeDenied:
		return "denied"
	default:
		return "indeterminate"
	}
}

// ExpirationFunc lazily resolves when a grant expires. A nil time means
// the grant does not expire.
type ExpirationFunc func(ctx context.Context) (*time.Time, error)

// Result is one position check outcome. Granted results carry a lazy
// expiration accessor; the engine's own grants never expire, but callers
// layering time-bounded grants wrap the result with their own accessor.
type Result struct {
	outcome    Outcome
	expiration ExpirationFunc
}

// Deny returns an explicit denial
func Deny() Result { return Result{outcome: OutcomeDenied} }

// Unknown returns an indeterminate result
func Unknown() Result { return Result{outcome: OutcomeIndeterminate} }

// Grant returns a granted result with no expiration
func Grant() Result { return Result{outcome: OutcomeGranted} }

// Outcome returns the three-valued outcome
func (r Result) Outcome() Outcome { return r.outcome }

// Granted reports whether the check granted
func (r Result) Granted() bool { return r.outcome == OutcomeGranted }

// Denied reports whether the check explicitly denied
func (r Result) Denied() bool { return r.outcome == OutcomeDenied }

// Indeterminate reports whether the answer could not be determined
func (r Result) Indeterminate() bool { return r.outcome == OutcomeIndeterminate }

// Expiration resolves when the grant expires; nil means never
func (r Result) Expiration(ctx context.Context) (*time.Time, error) {
	if r.expiration == nil {
		return nil, nil
	}
	return r.expiration(ctx)
}

// WithExpiration returns a copy of the result carrying the given accessor
func (r Result) WithExpiration(fn ExpirationFunc) Result {
	r.expiration = fn
	return r
}
