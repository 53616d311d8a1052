package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan checks the link tables for dangling references.
	TaskIntegrityScan = "rbac:integrity_scan"
	// TaskCacheWarmup pre-resolves effective permissions for active users.
	TaskCacheWarmup = "authz:cache_warmup"
)

// IntegrityScanPayload tunes a single integrity scan run.
type IntegrityScanPayload struct {
	// Repair deletes dangling link rows instead of only reporting them.
	Repair bool `json:"repair"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}

// CacheWarmupPayload tunes a single warmup run.
type CacheWarmupPayload struct {
	// MaxUsers caps how many users get warmed per run. Zero means all
	// active users.
	MaxUsers int `json:"maxUsers"`
}

// NewCacheWarmupTask constructs an Asynq task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}
