// -----------------------------------------------------------------------
// RunState - Persisted "what is currently executing" record
//
// Two instances exist (automatic and manual). At most one may have
// IsRunning=true at any instant; the coordinator enforces this before
// starting any run. The state is persisted before every suspension point
// so a run survives process restart.
// -----------------------------------------------------------------------

package models

// RunMode distinguishes the two RunState instances.
type RunMode string

const (
	RunModeAuto   RunMode = "auto"
	RunModeManual RunMode = "manual"
)

// RunConfig describes the unit(s) of work for a run. It is an immutable
// snapshot taken at run start.
type RunConfig struct {
	Sources []string `json:"sources"`
	// GroupedSearches holds the resolved search list per source.
	GroupedSearches map[string][]Search `json:"grouped_searches"`
	// MaxPages caps result pages per search when > 0 (test mode).
	MaxPages   int    `json:"max_pages,omitempty"`
	WorkbookID string `json:"workbook_id,omitempty"`
	TabName    string `json:"tab_name,omitempty"`
}

// RunProgress is the resumable cursor into a run's unit-of-work loop.
// It is persisted before each unit is attempted so a crash resumes at the
// current unit rather than silently skipping it.
type RunProgress struct {
	CurrentSource      string `json:"current_source"`
	CurrentSourceIndex int    `json:"current_source_index"`
	CurrentSearchIndex int    `json:"current_search_index"`
	CompletedSearches  int    `json:"completed_searches"`
	TotalSearches      int    `json:"total_searches"`
	TotalProfiles      int    `json:"total_profiles"`
}

// RunState is the single mutable record of an in-flight run.
type RunState struct {
	Mode      RunMode `json:"mode"`
	IsRunning bool    `json:"is_running"`
	IsAborted bool    `json:"is_aborted"`

	// ExecutionID links the active run to its ledger record.
	ExecutionID string `json:"execution_id,omitempty"`
	// TokenChecked records that the access token was verified for this
	// run session, so resume paths don't re-verify on every pass.
	TokenChecked bool `json:"token_checked,omitempty"`

	Config   *RunConfig   `json:"config,omitempty"`
	Progress *RunProgress `json:"progress,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewIdleRunState returns a cleared state for the given mode.
func NewIdleRunState(mode RunMode) *RunState {
	return &RunState{Mode: mode}
}

// Active reports whether this state currently holds the single-flight slot.
func (s *RunState) Active() bool {
	return s != nil && s.IsRunning
}

// SourceName returns the run's (first) source, or empty when idle.
func (s *RunState) SourceName() string {
	if s == nil || s.Config == nil || len(s.Config.Sources) == 0 {
		return ""
	}
	return s.Config.Sources[0]
}
