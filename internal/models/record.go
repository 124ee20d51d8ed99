package models

import (
	"time"
)

// LogRecord is the persisted snapshot of one job's log, keyed by job id.
// Content always holds the most recently accepted full snapshot; there is
// at most one record per job id.
type LogRecord struct {
	JobID     string    `json:"job_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
