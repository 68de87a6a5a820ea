package util

import (
	"github.com/google/uuid"
)

// NewWorkerID returns a process-unique id for a ChildWorker, used to tag
// log lines and to name a worker's temporary archive staging file so
// concurrent archive operations never collide.
func NewWorkerID() string {
	return uuid.NewString()
}
