package model

// Progress feed event types
const (
	FeedEventProgress = "progress"
	FeedEventComplete = "complete"
	FeedEventError    = "error"
	FeedEventPing     = "ping"
	FeedEventPong     = "pong"
)

// FeedEvent is the envelope shared by every progress-feed frame. Control
// frames (ping/pong) carry nothing else.
type FeedEvent struct {
	Type  string `json:"type"`
	JobID string `json:"jobId,omitempty"`
}

// AnalysisProgress reports how far an analysis job has come.
type AnalysisProgress struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	Progress    int       `json:"progress"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"currentStep,omitempty"`
}

// AnalysisComplete delivers the finished canonical result to subscribers.
type AnalysisComplete struct {
	Type   string          `json:"type"`
	JobID  string          `json:"jobId"`
	Result *AnalysisResult `json:"result"`
}

// AnalysisFailed delivers the stable job error to subscribers.
type AnalysisFailed struct {
	Type  string    `json:"type"`
	JobID string    `json:"jobId"`
	Error *JobError `json:"error"`
}
