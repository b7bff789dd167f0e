package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/service"
)

// HandleScheduledPublishTask runs the fan-out. Platform failures are part of
// the outcome and are never retried, so a task is not posted twice.
func (j *Queue) HandleScheduledPublishTask(ctx context.Context, task *asynq.Task) error {
	var payload ScheduledPublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := j.ps.Publish(ctx, &payload.Request)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	for _, r := range outcome.Results {
		if !r.Success {
			log.Printf("Error posting to %s for user %d: %s", r.Platform, outcome.UserID, r.Error)
		}
	}
	log.Printf("Scheduled publish for user %d finished: %s", outcome.UserID, outcome.Status)

	return nil
}
