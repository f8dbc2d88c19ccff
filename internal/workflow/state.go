package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/artistamplifier/api/internal/model"
)

// Status is the phase of the amplifier workflow.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusValidating       Status = "validating"
	StatusAnalyzing        Status = "analyzing"
	StatusPolling          Status = "polling"
	StatusReady            Status = "ready"
	StatusGenerating       Status = "generating"
	StatusReadyDescription Status = "readyDescription"
	StatusError            Status = "error"
)

// Busy reports whether the workflow has an operation in flight.
func (s Status) Busy() bool {
	switch s {
	case StatusValidating, StatusAnalyzing, StatusPolling, StatusGenerating:
		return true
	}
	return false
}

// ArtistForm is the artist profile the user fills in.
type ArtistForm struct {
	ArtistName        string         `json:"artistName"`
	SongTitle         string         `json:"songTitle"`
	ArtistDescription string         `json:"artistDescription"`
	Language          model.Language `json:"language,omitempty"`
}

const (
	minDescriptionLen = 50
	maxDescriptionLen = 1000
)

// Validate checks the form the same way the API will, so problems surface
// before any network round trip.
func (f ArtistForm) Validate() error {
	if strings.TrimSpace(f.ArtistName) == "" {
		return fmt.Errorf("artist name is required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(f.ArtistDescription))
	if n < minDescriptionLen {
		return fmt.Errorf("artist description needs at least %d characters, got %d", minDescriptionLen, n)
	}
	if n > maxDescriptionLen {
		return fmt.Errorf("artist description must stay under %d characters, got %d", maxDescriptionLen, n)
	}
	return nil
}

// State is the full workflow state. It only changes through Reduce.
type State struct {
	Status      Status                  `json:"status"`
	Form        ArtistForm              `json:"form"`
	JobID       string                  `json:"jobId,omitempty"`
	Analysis    *model.AnalysisResult   `json:"analysis,omitempty"`
	Description *model.GenerateResponse `json:"description,omitempty"`
	Message     string                  `json:"message,omitempty"`
}

// Event is a workflow transition trigger.
type Event interface{ isEvent() }

type (
	// FormEdited replaces the artist form.
	FormEdited struct{ Form ArtistForm }
	// ValidationStarted marks the audio pre-check running.
	ValidationStarted struct{}
	// AnalysisStarted marks the submit call running.
	AnalysisStarted struct{}
	// AnalysisPending records the job handle and moves to polling.
	AnalysisPending struct{ JobID string }
	// AnalysisDone records the finished analysis.
	AnalysisDone struct{ Result *model.AnalysisResult }
	// GenerationStarted marks the description call running.
	GenerationStarted struct{}
	// DescriptionReady records the generated description.
	DescriptionReady struct{ Description *model.GenerateResponse }
	// Failed records a terminal error for the current operation.
	Failed struct{ Message string }
	// Recovered clears an error or transient message.
	Recovered struct{}
	// Cancelled aborts the in-flight operation.
	Cancelled struct{}
	// ResetAll returns to a blank workflow.
	ResetAll struct{}
)

func (FormEdited) isEvent()        {}
func (ValidationStarted) isEvent() {}
func (AnalysisStarted) isEvent()   {}
func (AnalysisPending) isEvent()   {}
func (AnalysisDone) isEvent()      {}
func (GenerationStarted) isEvent() {}
func (DescriptionReady) isEvent()  {}
func (Failed) isEvent()            {}
func (Recovered) isEvent()         {}
func (Cancelled) isEvent()         {}
func (ResetAll) isEvent()          {}

// Reduce applies one event to the state and returns the next state. It is
// pure: unknown or out-of-phase events leave the state untouched.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case FormEdited:
		s.Form = ev.Form
		return s

	case ValidationStarted:
		if s.Status.Busy() {
			return s
		}
		s.Status = StatusValidating
		s.Message = ""
		return s

	case AnalysisStarted:
		s.Status = StatusAnalyzing
		s.JobID = ""
		s.Analysis = nil
		s.Message = ""
		return s

	case AnalysisPending:
		s.Status = StatusPolling
		s.JobID = ev.JobID
		return s

	case AnalysisDone:
		s.Status = StatusReady
		s.Analysis = ev.Result
		s.JobID = ""
		s.Message = ""
		return s

	case GenerationStarted:
		if s.Analysis == nil {
			return s
		}
		s.Status = StatusGenerating
		s.Message = ""
		return s

	case DescriptionReady:
		s.Status = StatusReadyDescription
		s.Description = ev.Description
		return s

	case Failed:
		// A generation failure keeps the analysis usable; the user can
		// retry without re-analyzing
		if s.Status == StatusGenerating && s.Analysis != nil {
			s.Status = StatusReady
			s.Message = ev.Message
			return s
		}
		s.Status = StatusError
		s.Message = ev.Message
		s.JobID = ""
		return s

	case Recovered:
		if s.Status == StatusError {
			if s.Analysis != nil {
				s.Status = StatusReady
			} else {
				s.Status = StatusIdle
			}
		}
		s.Message = ""
		return s

	case Cancelled:
		switch s.Status {
		case StatusValidating, StatusAnalyzing, StatusPolling:
			s.Status = StatusIdle
			s.JobID = ""
			s.Message = ""
		case StatusGenerating:
			s.Status = StatusReady
			s.Message = ""
		}
		return s

	case ResetAll:
		return State{Status: StatusIdle}

	default:
		return s
	}
}
