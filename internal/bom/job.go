package bom

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/edgeunify07/textile-flow-forge/internal/jobs"
	"github.com/edgeunify07/textile-flow-forge/jobs"
)

// RecomputeJob processes bom:recompute tasks.
type RecomputeJob struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewRecomputeJob constructs a job handler.
func NewRecomputeJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeJob {
	return &RecomputeJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RecomputeJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.BOMRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskBOMRecompute)
	report, err := j.service.RecomputeAll(ctx, payload.OrganizationID)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("bom recompute", slog.String("organization_id", payload.OrganizationID), slog.Any("error", err))
		}
		return tracker.End(err)
	}
	j.metrics.AddRecompute(payload.OrganizationID, report.Repriced, len(report.Drifted))
	return tracker.End(nil)
}
