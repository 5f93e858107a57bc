package common

import (
	"github.com/google/uuid"
)

// NewScheduleID generates a unique schedule ID with the "sch_" prefix
func NewScheduleID() string {
	return "sch_" + uuid.New().String()
}

// NewExecutionID generates a unique execution ID with the "exec_" prefix
func NewExecutionID() string {
	return "exec_" + uuid.New().String()
}

// NewQueueItemID generates a unique sync-queue item ID
func NewQueueItemID() string {
	return "row_" + uuid.New().String()
}
