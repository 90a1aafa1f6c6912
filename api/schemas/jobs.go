package schemas

import "time"

// JobStatus is the lifecycle state of one extraction run.
type JobStatus string

const (
	JobStarting    JobStatus = "starting"
	JobSubmitted   JobStatus = "submitted"
	JobPolling     JobStatus = "polling"
	JobDownloading JobStatus = "downloading"
	JobAnalyzing   JobStatus = "analyzing"
	JobSucceeded   JobStatus = "succeeded"
	JobFailed      JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobSource records where a run's archive came from.
type JobSource string

const (
	SourceRemote   JobSource = "remote"
	SourceArchive  JobSource = "archive"
	SourceSnapshot JobSource = "snapshot"
)

// ProgressEntry is one line of a job's progress trace. Entries are for
// observability only and never drive control flow.
type ProgressEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// JobStats holds the aggregate counters of a finished analysis pass.
type JobStats struct {
	TotalFiles           int `json:"total_files"`
	ComponentsStored     int `json:"components_stored"`
	DependenciesStored   int `json:"dependencies_stored"`
	SkippedFiles         int `json:"skipped_files"`
	ParseFailures        int `json:"parse_failures"`
	UnresolvedReferences int `json:"unresolved_references"`
}

// ExtractionJob is the record of one end-to-end extraction run.
type ExtractionJob struct {
	ID          string          `json:"id"`
	Scope       Scope           `json:"scope"`
	Source      JobSource       `json:"source"`
	Status      JobStatus       `json:"status"`
	RemoteJobID string          `json:"remote_job_id,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Stats       JobStats        `json:"stats"`
	Error       string          `json:"error,omitempty"`
	Progress    []ProgressEntry `json:"progress"`
}

// Clone returns a deep copy so callers can read a job without sharing the
// progress slice with its driver.
func (j ExtractionJob) Clone() ExtractionJob {
	out := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.Progress = append([]ProgressEntry(nil), j.Progress...)
	return out
}
