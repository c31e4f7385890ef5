// Package syncengine implements the conflict detector and auto-resolver,
// the push/pull protocol orchestration, and manual conflict resolution —
// the components spec.md calls the sync engine's core.
package syncengine

import (
	"github.com/taskmaster/syncserver/internal/clock"
)

// Verdict is the outcome of comparing an incoming change's vector clock
// against the server's.
type Verdict int

const (
	// VerdictReject means the incoming change is causally older than the
	// server's state and must be silently dropped.
	VerdictReject Verdict = iota
	// VerdictNoop means the clocks are equal; nothing to do.
	VerdictNoop
	// VerdictAccept means the incoming change supersedes server state and
	// should overwrite it outright.
	VerdictAccept
	// VerdictResolve means the clocks are concurrent; the auto-resolver
	// must run.
	VerdictResolve
)

// DetectConflict compares an incoming change's vector clock against the
// server's and returns the relation alongside the verdict it implies.
//
// Earlier implementations of this kind of detector (see spec.md §9 design
// notes) collapsed BEFORE and AFTER into a single "no conflict" boolean,
// which left the caller unable to tell "drop this" from "accept this" and
// caused stale changes to silently overwrite newer ones. This detector
// returns the full relation so the four cases stay distinct:
//
//   - (no_conflict, BEFORE)    -> reject
//   - (no_conflict, EQUAL)     -> no-op
//   - (no_conflict, AFTER)     -> accept and overwrite
//   - (conflict, CONCURRENT)   -> auto-resolution required
func DetectConflict(incoming, server clock.Clock) (Verdict, clock.Relation) {
	relation := clock.Compare(incoming, server)

	switch relation {
	case clock.Before:
		return VerdictReject, relation
	case clock.Equal:
		return VerdictNoop, relation
	case clock.After:
		return VerdictAccept, relation
	default:
		return VerdictResolve, relation
	}
}
