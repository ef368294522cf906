// Package jobs runs settlement recomputation in the background with asynq.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskRecompute recomputes one driver week.
	TaskRecompute = "settlement:recompute"
	// TaskRecomputeWeek fans out TaskRecompute to every active driver.
	TaskRecomputeWeek = "settlement:recompute_week"
)

// RecomputePayload identifies one driver week.
type RecomputePayload struct {
	DriverID string `json:"driver_id"`
	WeekID   string `json:"week_id"`
	Force    bool   `json:"force"`
}

// RecomputeWeekPayload selects the week to fan out. An empty WeekID means
// the ISO week before the one the task runs in.
type RecomputeWeekPayload struct {
	WeekID string `json:"week_id,omitempty"`
	Force  bool   `json:"force"`
}

// NewRecomputeTask builds a per-driver task. The task ID dedupes
// concurrent enqueues for the same driver week.
func NewRecomputeTask(p RecomputePayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal recompute payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(recomputeTaskID(p.DriverID, p.WeekID))}, opts...)
	return asynq.NewTask(TaskRecompute, data, opts...), nil
}

// NewRecomputeWeekTask builds a fan-out task.
func NewRecomputeWeekTask(p RecomputeWeekPayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal recompute week payload: %w", err)
	}
	return asynq.NewTask(TaskRecomputeWeek, data, opts...), nil
}

func recomputeTaskID(driverID, weekID string) string {
	return "recompute:" + driverID + ":" + weekID
}
