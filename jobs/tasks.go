package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBOMRecompute re-prices editable BOMs and checks decided ones for drift.
	TaskBOMRecompute = "bom:recompute"
)

// recomputeUniqueTTL collapses repeated enqueues for the same organization.
const recomputeUniqueTTL = 10 * time.Minute

// BOMRecomputePayload scopes a recompute run. An empty organization means all.
type BOMRecomputePayload struct {
	OrganizationID string `json:"organization_id"`
}

// NewBOMRecomputeTask constructs an Asynq task for a recompute run.
func NewBOMRecomputeTask(organizationID string) (*asynq.Task, error) {
	body, err := json.Marshal(BOMRecomputePayload{OrganizationID: organizationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBOMRecompute, body, asynq.Queue(QueueDefault)), nil
}
