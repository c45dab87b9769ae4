// Package presence tracks which users are currently online, and backs the
// voice-state store described in §6.8. Grounded on
// original_source/crates/core/voice/src/lib.rs's Redis key scheme
// (vc-members-<channel>, vc-<user>, can_publish-<user>-<scope>, ...),
// generalized to an interface with both a Redis-pipelined implementation and
// an in-memory reference.
package presence

import "context"

// Presence tracks per-user online state.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	// FilterOnline returns the subset of userIDs currently online, used by
	// the push dispatcher's presence filter (§4.7) to skip users who don't
	// need a push because they're already connected.
	FilterOnline(ctx context.Context, userIDs []string) ([]string, error)
}
