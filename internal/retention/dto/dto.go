// Package dto defines the request and response payloads of the retention API.
package dto

import (
	"time"

	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/scheduler"
)

type PostContentRequest struct {
	Text string `json:"text" binding:"required"`
}

type ScheduledContentResponse struct {
	ID                  string `json:"id"`
	Text                string `json:"text,omitempty"`
	Decision            string `json:"decision"`
	PlannedDeletionTime string `json:"planned_deletion_time,omitempty"`
}

type PurgeRequest struct {
	// Hours overrides the retention window as the purge cutoff.
	Hours *float64 `json:"hours,omitempty"`
}

type PurgeResponse struct {
	Deleted []string `json:"deleted"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Tracked int    `json:"tracked"`
	Halted  bool   `json:"halted"`
}

func FromScheduled(item *platform.ContentItem, result scheduler.ObserveResult) ScheduledContentResponse {
	resp := ScheduledContentResponse{
		ID:       item.ID,
		Text:     item.Text,
		Decision: result.Decision.String(),
	}
	if !result.DeleteAt.IsZero() {
		resp.PlannedDeletionTime = result.DeleteAt.UTC().Format(time.RFC3339)
	}
	return resp
}
