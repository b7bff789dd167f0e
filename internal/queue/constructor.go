package queue

import (
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
)

type Queue struct {
	ps service.PublishService
}

func NewQueue(ps service.PublishService) *Queue {
	return &Queue{ps: ps}
}

const TaskTypeScheduledPublish = "publish:scheduled"

type ScheduledPublishPayload struct {
	Request models.PublishRequest `json:"request"`
}
