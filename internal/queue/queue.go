package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueuePublish schedules the request to run after delay and returns the task id.
func EnqueuePublish(ctx context.Context, client Enqueuer, payload ScheduledPublishPayload, delay time.Duration) (string, error) {
	payload.Request.ScheduledAt = nil

	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypeScheduledPublish, taskPayload, asynq.MaxRetry(0))

	info, err := client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	if err != nil {
		return "", err
	}

	log.Printf("Task scheduled: id=%s user_id=%d platforms=%v", info.ID, payload.Request.UserID, payload.Request.Platforms)
	return info.ID, nil
}
