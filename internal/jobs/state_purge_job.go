package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/repository"
)

type StatePurgeJob struct {
	states repository.OAuthStateRepository
}

func NewStatePurgeJob(states repository.OAuthStateRepository) *StatePurgeJob {
	return &StatePurgeJob{states: states}
}

func (j *StatePurgeJob) PurgeExpiredStates() {
	n, err := j.states.PurgeExpired(context.Background())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if n > 0 {
		slog.Info("purged expired oauth states", "count", n)
	}
}
