package stream

import (
	"context"
	"fmt"

	"github.com/roach88/pushsync/internal/ir"
)

// Decrypter turns fetched events into plaintext.
// The result preserves order and omits events that failed to decrypt.
type Decrypter interface {
	Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent
}

// LocalStore is the durable local state the pipeline writes.
type LocalStore interface {
	// Apply runs the per-kind appliers. handled is false when no applier
	// consumes the event's kind.
	Apply(ctx context.Context, ev ir.UpdateEvent) (handled bool, err error)
	// Commit makes everything applied since the last commit durable.
	Commit(ctx context.Context) error
	// Recycle tears the store handle down and rebuilds it. It returns only
	// once the new handle is usable.
	Recycle(ctx context.Context) error
}

// Checkpoints persists the last applied event per account.
// Set overwrites unconditionally.
type Checkpoints interface {
	Get(account string) (ir.EventID, bool, error)
	Set(account string, id ir.EventID) error
}

// Waker signals that requests may be available.
type Waker interface {
	Publish()
}

// BatchListener is told about every fetched page before it is applied.
type BatchListener interface {
	OnBatchFetched(batch ir.EventBatch)
}

// FetchFailureListener is told about failed page fetches.
type FetchFailureListener interface {
	OnFetchFailed(err error)
}

// EventFailureListener is told about events that did not take full effect.
type EventFailureListener interface {
	OnEventFailed(failure ir.EventFailure)
}

// Policy decides what happens to the checkpoint when an event fails to
// apply or commit.
type Policy string

const (
	// PolicyAdvance moves the checkpoint past the failed event and carries on
	// with the batch. The failed event's effect is lost.
	PolicyAdvance Policy = "advance"

	// PolicyHalt stops the batch without moving the checkpoint, so the
	// failed event is fetched again on the next pass.
	PolicyHalt Policy = "halt"
)

// ParsePolicy parses a policy name. The empty string means PolicyAdvance.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAdvance:
		return PolicyAdvance, nil
	case PolicyHalt:
		return PolicyHalt, nil
	default:
		return "", fmt.Errorf("unknown commit failure policy %q (want %q or %q)", s, PolicyAdvance, PolicyHalt)
	}
}
