package model

// ChordInfo is one simplified chord interval from the analysis provider.
type ChordInfo struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	ChordMajMin string  `json:"chord_majmin"`
}

// AnalyzedTrack is the canonical musical-feature record produced by the
// result transformer. Tag lists are deduplicated; scalar fields default to
// zero values rather than being absent so consumers never branch on missing
// fields.
type AnalyzedTrack struct {
	Lyrics        string      `json:"lyrics"`
	Chords        []ChordInfo `json:"chords"`
	Moods         []string    `json:"moods"`
	Genres        []string    `json:"genres"`
	Subgenres     []string    `json:"subgenres"`
	Instruments   []string    `json:"instruments"`
	Movements     []string    `json:"movements"`
	EnergyLevel   string      `json:"energyLevel"`
	Emotion       string      `json:"emotion"`
	Language      string      `json:"language"`
	Key           string      `json:"key"`
	TimeSignature string      `json:"timeSignature"`
	VoiceGender   string      `json:"voiceGender"`
	VoicePresence string      `json:"voicePresence"`
	MusicalEra    string      `json:"musicalEra"`
	Duration      float64     `json:"duration"`
	Cover         string      `json:"cover"`
}

// AnalysisData is the payload section of an AnalysisResult.
type AnalysisData struct {
	FileName      string        `json:"fileName,omitempty"`
	Size          int64         `json:"size,omitempty"`
	Type          string        `json:"type,omitempty"`
	Tempo         int           `json:"tempo,omitempty"`
	Mood          string        `json:"mood,omitempty"`
	AnalyzedTrack AnalyzedTrack `json:"analyzedTrack"`
}

// AnalysisResult is the canonical, client-visible outcome of an analysis job.
// Created once by the transformer and immutable afterwards.
type AnalysisResult struct {
	ID       string       `json:"id"`
	Provider string       `json:"provider"`
	Data     AnalysisData `json:"data"`
}

// AnalyzeRequest is the body of POST /api/audio/analyze. The audio itself has
// already been uploaded to object storage; the request carries a reference
// plus the declared size/type and an optional client-computed checksum.
type AnalyzeRequest struct {
	URL            string `json:"url" validate:"required,url"`
	FileName       string `json:"fileName" validate:"required"`
	Size           int64  `json:"size" validate:"required,gt=0"`
	Type           string `json:"type" validate:"required"`
	ChecksumSHA256 string `json:"checksumSha256,omitempty"`
}

// ProcessingResponse is the 202 handle returned when the bounded wait window
// elapses before the provider finishes.
type ProcessingResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

// OutcomeState enumerates the three possible outcomes of a submit or poll.
type OutcomeState string

const (
	OutcomeDone    OutcomeState = "done"
	OutcomePending OutcomeState = "pending"
	OutcomeFailed  OutcomeState = "failed"
)

// AnalysisOutcome is the explicit three-state result of Submit/PollStatus:
// Done carries the transformed result, Pending carries the job handle, and
// Failed carries the structured job error.
type AnalysisOutcome struct {
	State  OutcomeState
	Result *AnalysisResult
	JobID  string
	Err    *JobError
}

// Done wraps a completed result.
func Done(res *AnalysisResult) *AnalysisOutcome {
	return &AnalysisOutcome{State: OutcomeDone, Result: res}
}

// Pending wraps a still-processing job handle.
func Pending(jobID string) *AnalysisOutcome {
	return &AnalysisOutcome{State: OutcomePending, JobID: jobID}
}

// Failed wraps a terminal job error.
func Failed(jobErr *JobError) *AnalysisOutcome {
	return &AnalysisOutcome{State: OutcomeFailed, Err: jobErr}
}
