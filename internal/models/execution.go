// -----------------------------------------------------------------------
// ExecutionRecord - One concrete run attempt in the capped history ledger
// -----------------------------------------------------------------------

package models

import "time"

// ExecutionStatus is the lifecycle status of an execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// MaxExecutionHistory caps the execution ledger. Oldest entries are
// silently dropped on overflow; this is a bounded ring buffer, not a
// durable audit log.
const MaxExecutionHistory = 100

// ExecutionRecord is one concrete run attempt. Created at run start with
// status running, mutated in place as progress advances, and transitioned
// to completed or failed exactly once.
type ExecutionRecord struct {
	ID string `json:"id"`
	// ScheduleID is empty for manually triggered runs.
	ScheduleID string `json:"schedule_id,omitempty"`
	SourceName string `json:"source_name"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Status ExecutionStatus `json:"status"`

	SearchesCompleted int `json:"searches_completed"`
	TotalSearches     int `json:"total_searches"`
	// ProfilesScraped is monotonically non-decreasing while running.
	ProfilesScraped int `json:"profiles_scraped"`

	Error string `json:"error,omitempty"`

	WorkbookID string `json:"workbook_id,omitempty"`
	TabName    string `json:"tab_name,omitempty"`

	// SheetURL is derived decoration added on retrieval; never stored.
	SheetURL string `json:"sheet_url,omitempty"`
}

// ExecutionPatch carries a partial update merged into an existing record.
// Nil fields are left unchanged.
type ExecutionPatch struct {
	Status            *ExecutionStatus
	SearchesCompleted *int
	TotalSearches     *int
	ProfilesScraped   *int
	Error             *string
	WorkbookID        *string
	TabName           *string
}

// IsTerminal reports whether the status ends the record's lifecycle.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}
