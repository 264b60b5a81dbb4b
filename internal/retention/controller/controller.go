// Package controller coordinates the retention API: it publishes posts
// through the platform gateway, hands them to the scheduler, and translates
// scheduler state into API errors.
package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/zebraclach/twitter-autodelete-bot/internal/common/errors"
	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/dto"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/policy"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/scheduler"
)

// Retainer is the scheduler capability the controller consumes.
type Retainer interface {
	Observe(ctx context.Context, item platform.ContentItem) (scheduler.ObserveResult, error)
	Purge(ctx context.Context, olderThan time.Duration) ([]string, error)
	TrackedCount() int
	Halted() bool
	IsRunning() bool
}

type Controller struct {
	gateway    platform.Gateway
	retainer   Retainer
	thresholds policy.Thresholds
}

func NewController(gateway platform.Gateway, retainer Retainer, thresholds policy.Thresholds) *Controller {
	return &Controller{
		gateway:    gateway,
		retainer:   retainer,
		thresholds: thresholds,
	}
}

// PostContent publishes a post and schedules its deletion.
func (c *Controller) PostContent(ctx context.Context, req dto.PostContentRequest) (dto.ScheduledContentResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return dto.ScheduledContentResponse{}, apperrors.ValidationError("text", "must not be empty")
	}

	item, err := c.gateway.PostContent(ctx, text)
	if err != nil {
		return dto.ScheduledContentResponse{}, apperrors.UpstreamError("failed to publish post", err)
	}

	result, err := c.retainer.Observe(ctx, *item)
	if err != nil {
		// The post exists upstream but is not tracked; the next sweep
		// picks it up, so report the post with the failure.
		return dto.ScheduledContentResponse{}, apperrors.InternalError("post published but scheduling failed", err)
	}
	return dto.FromScheduled(item, result), nil
}

// Purge triggers a bulk deletion of posts older than the cutoff. Without an
// explicit cutoff, the retention window applies.
func (c *Controller) Purge(ctx context.Context, req dto.PurgeRequest) (dto.PurgeResponse, error) {
	olderThan := c.thresholds.Window
	if req.Hours != nil {
		if *req.Hours <= 0 {
			return dto.PurgeResponse{}, apperrors.ValidationError("hours", "must be positive")
		}
		olderThan = time.Duration(*req.Hours * float64(time.Hour))
	}

	deleted, err := c.retainer.Purge(ctx, olderThan)
	if err != nil {
		if errors.Is(err, scheduler.ErrHalted) {
			return dto.PurgeResponse{}, apperrors.Conflict("automatic deletion is halted, fix credentials and restart")
		}
		return dto.PurgeResponse{}, apperrors.UpstreamError("purge failed", err)
	}
	return dto.PurgeResponse{Deleted: deleted}, nil
}

// Health reports scheduler liveness and tracking volume.
func (c *Controller) Health(ctx context.Context) dto.HealthResponse {
	status := "ok"
	switch {
	case !c.retainer.IsRunning():
		status = "stopped"
	case c.retainer.Halted():
		status = "halted"
	}
	return dto.HealthResponse{
		Status:  status,
		Tracked: c.retainer.TrackedCount(),
		Halted:  c.retainer.Halted(),
	}
}
