// Package policy holds the pure deletion-decision functions. It has no I/O;
// callers fetch signals and resolve fetch failures before calling in
// (a failed engagement read counts as 0, a failed favorited check as false,
// so failures lean toward deletion rather than silently keeping content).
package policy

import (
	"fmt"
	"time"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/config"
	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
)

// Kind enumerates the possible outcomes of a policy decision.
type Kind int

const (
	// KindExempt means the owner liked the post; stop tracking it.
	KindExempt Kind = iota
	// KindDeleteNow means the post should be removed immediately.
	KindDeleteNow
	// KindDeleteAt means the post should be removed at Decision.At.
	KindDeleteAt
	// KindKeepTracked means the post is past its window but popular enough
	// to keep; revisit on the next sweep.
	KindKeepTracked
)

func (k Kind) String() string {
	switch k {
	case KindExempt:
		return "exempt"
	case KindDeleteNow:
		return "delete_now"
	case KindDeleteAt:
		return "delete_at"
	case KindKeepTracked:
		return "keep_tracked"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Decision is the outcome of evaluating a post against the thresholds.
type Decision struct {
	Kind Kind
	At   time.Time // set only for KindDeleteAt
}

// Thresholds are the tunable policy parameters. Exact numbers are
// configuration defaults, not contracts.
type Thresholds struct {
	// Window is the age after which an untouched post becomes eligible
	// for deletion.
	Window time.Duration
	// PopularCeiling is the engagement count above which an aged post is
	// kept instead of deleted.
	PopularCeiling int
	// EarlyWarning is the lower engagement count that triggers immediate
	// deletion of a tracked post regardless of its planned time.
	EarlyWarning int
}

// Defaults returns the standard thresholds: 12h window, 10000 ceiling,
// 1000 early warning.
func Defaults() Thresholds {
	return Thresholds{
		Window:         12 * time.Hour,
		PopularCeiling: 10000,
		EarlyWarning:   1000,
	}
}

// FromConfig builds thresholds from the retention configuration section.
func FromConfig(cfg config.RetentionConfig) Thresholds {
	return Thresholds{
		Window:         cfg.Window(),
		PopularCeiling: cfg.PopularCeiling,
		EarlyWarning:   cfg.EarlyWarning,
	}
}

// Decide evaluates a post at the given instant.
//
//   - favorited: exempt permanently
//   - younger than the window: delete at creation + window
//   - aged and below the popular ceiling: delete now
//   - aged and at or above the ceiling: keep tracked, revisit later
func (t Thresholds) Decide(item platform.ContentItem, now time.Time) Decision {
	if item.Favorited {
		return Decision{Kind: KindExempt}
	}

	deleteAt := item.CreatedAt.Add(t.Window)
	if now.Before(deleteAt) {
		return Decision{Kind: KindDeleteAt, At: deleteAt}
	}

	if item.Engagement < t.PopularCeiling {
		return Decision{Kind: KindDeleteNow}
	}
	return Decision{Kind: KindKeepTracked}
}

// FastTrack reports whether a tracked post should be deleted immediately
// because its engagement crossed the early-warning threshold. Evaluated on
// every sweep, independent of the planned deletion time, to cap exposure of
// a post gaining unexpected traction.
func (t Thresholds) FastTrack(engagement int, favorited bool) bool {
	return !favorited && engagement >= t.EarlyWarning
}

// PurgeEligible reports whether a post qualifies for operator-triggered bulk
// deletion: older than the cutoff, below the popular ceiling, not favorited.
func (t Thresholds) PurgeEligible(item platform.ContentItem, cutoff time.Time) bool {
	if item.Favorited {
		return false
	}
	if item.CreatedAt.After(cutoff) {
		return false
	}
	return item.Engagement < t.PopularCeiling
}
