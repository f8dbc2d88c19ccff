package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. A job in a terminal state
// never transitions again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job types
const (
	JobTypeAnalyze = "analyze"
)

// JobError is the structured error attached to a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job represents one analysis unit of work submitted to the provider.
// Clients only ever hold the job ID; the record itself is owned by the
// orchestrator and persisted in Redis.
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	CurrentStep   string     `json:"currentStep,omitempty"`
	Error         *JobError  `json:"error,omitempty"`
	ProviderJobID string     `json:"providerJobId,omitempty"`
	FileName      string     `json:"fileName,omitempty"`
	Size          int64      `json:"size,omitempty"`
	ContentType   string     `json:"contentType,omitempty"`
	Result        []byte     `json:"result,omitempty"` // canonical AnalysisResult JSON
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// AnalyzeTaskPayload is the asynq task payload for analyze:process.
type AnalyzeTaskPayload struct {
	JobID string `json:"jobId"`
}
