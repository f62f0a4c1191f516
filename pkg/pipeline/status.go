// Package pipeline holds the domain vocabulary shared by the dispatcher,
// the worker runtime and the job store: job and layer states, and the
// error taxonomy used to decide retries and HTTP status codes.
package pipeline

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job in this state can never change state
// again. Terminal rows are immutable except for housekeeping deletion.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request is legal for this state.
func (s JobStatus) Cancellable() bool {
	return s == JobQueued || s == JobProcessing
}

// LayerStatus is the lifecycle state of the logical deliverable.
type LayerStatus string

const (
	LayerPending    LayerStatus = "pending"
	LayerProcessing LayerStatus = "processing"
	LayerProcessed  LayerStatus = "processed"
	LayerError      LayerStatus = "error"
)
