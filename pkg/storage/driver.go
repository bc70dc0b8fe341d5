// Package storage defines the turn log shared by every storage backend.
package storage

import (
	"context"

	"github.com/papercomputeco/callflow/pkg/llm"
)

// DefaultLimit is the number of most recent turns returned by Load and
// considered by HistoryFor.
const DefaultLimit = 10

// Unbounded asks Load for every stored turn.
const Unbounded = 0

// Driver is an append-only log of turns addressable by call identifier.
// Drivers never return errors from these operations: failures are logged
// and degrade to an empty result or a false return.
type Driver interface {
	// Load returns the last limit turns in ascending timestamp order.
	// A limit <= 0 returns every turn.
	Load(ctx context.Context, limit int) []llm.Turn

	// Append stores a turn, assigning a timestamp if it has none.
	// It reports whether the turn was saved.
	Append(ctx context.Context, turn llm.Turn) bool

	// HistoryFor returns the turns of one call found within the most recent
	// HistoryLimit turns of the whole log. Filtering happens after the
	// limit, so busy logs can hide older turns of a quiet call.
	HistoryFor(ctx context.Context, callID string) []llm.Turn

	// Close releases any resources held by the driver.
	Close() error
}

// Recent returns the last limit turns of sorted, or all of them when
// limit <= 0.
func Recent(sorted []llm.Turn, limit int) []llm.Turn {
	if limit > 0 && len(sorted) > limit {
		return sorted[len(sorted)-limit:]
	}
	return sorted
}

// FilterCall keeps the turns that belong to callID, preserving order.
func FilterCall(turns []llm.Turn, callID string) []llm.Turn {
	out := make([]llm.Turn, 0, len(turns))
	for _, t := range turns {
		if t.HasCallID(callID) {
			out = append(out, t)
		}
	}
	return out
}
