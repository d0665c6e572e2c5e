// Package retention holds the time policy for automatic post archival.
package retention

import "time"

// Window is how long an unpinned post stays active before the sweep
// archives it.
const Window = 30 * 24 * time.Hour

// Reference returns the archive-reference timestamp for a post:
// the moment it was last unpinned if that ever happened, otherwise
// its creation time.
func Reference(createdAt time.Time, unpinnedAt *time.Time) time.Time {
	if unpinnedAt != nil {
		return *unpinnedAt
	}
	return createdAt
}

// Due reports whether a post with the given reference timestamp has
// exhausted its retention window at the given instant.
func Due(reference, now time.Time) bool {
	return !now.Before(reference.Add(Window))
}

// Cutoff returns the latest reference timestamp that is already due
// at the given instant. Used as the threshold of the bulk sweep.
func Cutoff(now time.Time) time.Time {
	return now.Add(-Window)
}

// IsOld reports whether a post was created a full retention window
// ago. Unpinning such a post prompts the caller to choose between
// immediate archival and a fresh grace period.
func IsOld(createdAt, now time.Time) bool {
	return Due(createdAt, now)
}
