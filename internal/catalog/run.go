package catalog

// RunStatus is the lifecycle state of a ScanRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ScanRun is the audit record of one scanner invocation.
// It is written twice: once at start (running) and once at the end.
type ScanRun struct {
	// ID is a ULID, so runs sort by start time
	ID              string    `json:"id"`
	StartedAt       int64     `json:"started_at"`
	FinishedAt      *int64    `json:"finished_at,omitempty"`
	Roots           []string  `json:"roots"`
	FilesScanned    int       `json:"files_scanned"`
	FilesNew        int       `json:"files_new"`
	FilesUpdated    int       `json:"files_updated"`
	FilesDeleted    int       `json:"files_deleted"`
	Status          RunStatus `json:"status"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
}

// RunStats are the counters written at run completion.
type RunStats struct {
	Scanned int `json:"scanned"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}
