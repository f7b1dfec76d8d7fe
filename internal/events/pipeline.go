package events

// Event type names.
const (
	EventTaskQueued       = "task.queued"
	EventTaskStateChanged = "task.state_changed"
	EventTaskCompleted    = "task.completed"
	EventTaskFailed       = "task.failed"

	EventMatchCommitted = "match.committed"
	EventMatchAmbiguous = "match.ambiguous"
	EventMatchFailed    = "match.failed"

	EventOrganizeCompleted = "organize.completed"
	EventOrganizeFailed    = "organize.failed"
)

// Entity type names.
const (
	EntityTask  = "task"
	EntityMatch = "match"
	EntityFile  = "file"
)

// TaskQueued is published when a new acquisition task is accepted.
type TaskQueued struct {
	BaseEvent
	TaskID      int64  `json:"task_id"`
	ReleaseName string `json:"release_name"`
}

// TaskStateChanged is published on every task state transition.
type TaskStateChanged struct {
	BaseEvent
	TaskID int64  `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// TaskCompleted is published exactly once when a task first reaches
// the completed state.
type TaskCompleted struct {
	BaseEvent
	TaskID     int64  `json:"task_id"`
	LibraryID  int64  `json:"library_id"`
	SourcePath string `json:"source_path"`
}

// TaskFailed is published when a task enters the error state.
type TaskFailed struct {
	BaseEvent
	TaskID int64  `json:"task_id"`
	Reason string `json:"reason"`
}

// MatchCommitted is published when a file match is committed to a wanted item.
type MatchCommitted struct {
	BaseEvent
	MatchID      int64   `json:"match_id"`
	WantedItemID int64   `json:"wanted_item_id"`
	SourcePath   string  `json:"source_path"`
	Confidence   float64 `json:"confidence"`
}

// MatchAmbiguous is published when a match cannot be auto-resolved.
type MatchAmbiguous struct {
	BaseEvent
	MatchID    int64  `json:"match_id"`
	SourcePath string `json:"source_path"`
	Reason     string `json:"reason"`
}

// MatchFailed is published when matching fails terminally.
type MatchFailed struct {
	BaseEvent
	MatchID    int64  `json:"match_id"`
	SourcePath string `json:"source_path"`
	Reason     string `json:"reason"`
}

// OrganizeCompleted is published when a file has been moved into the library.
type OrganizeCompleted struct {
	BaseEvent
	MatchID  int64  `json:"match_id"`
	FileID   int64  `json:"file_id"`
	DestPath string `json:"dest_path"`
}

// OrganizeFailed is published when organizing a matched file fails.
type OrganizeFailed struct {
	BaseEvent
	MatchID    int64  `json:"match_id"`
	SourcePath string `json:"source_path"`
	Reason     string `json:"reason"`
}
