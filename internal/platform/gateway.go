// Package platform adapts the upstream social-media API for the retention
// scheduler. It owns outbound call pacing and the error taxonomy the
// scheduler's retry and halt decisions are built on.
package platform

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the upstream API. The scheduler branches on these:
// ErrNotFound is treated as success, ErrUnauthorized halts automatic
// deletion, everything else retries on the next sweep.
var (
	ErrNotFound     = errors.New("content not found")
	ErrUnauthorized = errors.New("platform credentials rejected")
	ErrRateLimited  = errors.New("platform rate limit exceeded")
)

// ContentItem is a post as seen on the platform.
type ContentItem struct {
	ID         string
	Text       string
	CreatedAt  time.Time
	Engagement int
	Favorited  bool
}

// Age returns how long the item has existed at the given instant.
func (c ContentItem) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// Gateway is the consumed capability set of the upstream platform.
// All calls are network I/O; implementations must honor the context.
type Gateway interface {
	// PostContent publishes a new post and returns it.
	PostContent(ctx context.Context, text string) (*ContentItem, error)

	// DeleteContent irreversibly removes a post.
	DeleteContent(ctx context.Context, id string) error

	// EngagementCount returns the current impression count for a post.
	EngagementCount(ctx context.Context, id string) (int, error)

	// FavoritedByOwner reports whether the account owner has liked the post.
	FavoritedByOwner(ctx context.Context, id string) (bool, error)

	// ListRecent returns up to limit of the account's most recent posts,
	// excluding reposts. Ordering between items is not guaranteed.
	ListRecent(ctx context.Context, limit int) ([]ContentItem, error)
}
