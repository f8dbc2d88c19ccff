package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artistamplifier/api/internal/model"
)

// UploadedAudio describes a file the API client pushed to object storage.
type UploadedAudio struct {
	URL            string
	FileName       string
	Size           int64
	Type           string
	ChecksumSHA256 string
}

// API is the backend surface the controller drives.
type API interface {
	ValidateAudio(ctx context.Context, path string) error
	UploadAudio(ctx context.Context, path string) (*UploadedAudio, error)
	SubmitAnalysis(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisOutcome, error)
	AnalysisStatus(ctx context.Context, jobID string) (*model.AnalysisOutcome, error)
	GenerateDescription(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error)
}

// Errors for operations attempted in the wrong phase.
var (
	ErrBusy       = errors.New("an operation is already running")
	ErrNoAnalysis = errors.New("no analysis available yet")
)

// Controller runs the amplifier workflow. All state changes go through
// Reduce under the lock; long operations run against a cancellable context
// and carry a sequence number, so a Cancel or Reset makes any still-running
// operation's results stale instead of racing them.
type Controller struct {
	mu      sync.Mutex
	state   State
	api     API
	session *SessionStore
	seq     int
	cancel  context.CancelFunc

	pollInitial time.Duration
	pollFactor  float64
	pollCap     time.Duration
	pollCeiling time.Duration
}

// NewController builds a controller, restoring saved session state when a
// session store is given.
func NewController(api API, session *SessionStore) *Controller {
	state := State{Status: StatusIdle}
	if session != nil {
		state = session.Restore()
	}
	return &Controller{
		state:       state,
		api:         api,
		session:     session,
		pollInitial: 2 * time.Second,
		pollFactor:  1.5,
		pollCap:     8 * time.Second,
		pollCeiling: 3 * time.Minute,
	}
}

// SetPollSchedule overrides the status poll backoff. Tests shorten it.
func (c *Controller) SetPollSchedule(initial, cap, ceiling time.Duration) {
	c.pollInitial = initial
	c.pollCap = cap
	c.pollCeiling = ceiling
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EditForm replaces the artist form and persists it.
func (c *Controller) EditForm(form ArtistForm) {
	c.mu.Lock()
	c.state = Reduce(c.state, FormEdited{Form: form})
	c.mu.Unlock()
	if c.session != nil {
		c.session.SaveForm(form)
	}
}

// SubmitAudio validates, uploads and analyzes the audio file at path,
// blocking until the analysis finishes, fails, or the operation is
// cancelled.
func (c *Controller) SubmitAudio(ctx context.Context, path string) error {
	opCtx, seq, err := c.begin(ctx, ValidationStarted{})
	if err != nil {
		return err
	}

	if err := c.api.ValidateAudio(opCtx, path); err != nil {
		return c.fail(opCtx, seq, err)
	}

	c.applyIf(seq, AnalysisStarted{})

	uploaded, err := c.api.UploadAudio(opCtx, path)
	if err != nil {
		return c.fail(opCtx, seq, err)
	}

	outcome, err := c.api.SubmitAnalysis(opCtx, &model.AnalyzeRequest{
		URL:            uploaded.URL,
		FileName:       uploaded.FileName,
		Size:           uploaded.Size,
		Type:           uploaded.Type,
		ChecksumSHA256: uploaded.ChecksumSHA256,
	})
	if err != nil {
		return c.fail(opCtx, seq, err)
	}

	return c.settle(opCtx, seq, outcome)
}

// settle resolves an analysis outcome, polling as long as it stays pending.
func (c *Controller) settle(ctx context.Context, seq int, outcome *model.AnalysisOutcome) error {
	switch outcome.State {
	case model.OutcomeDone:
		if c.applyIf(seq, AnalysisDone{Result: outcome.Result}) && c.session != nil {
			c.session.SaveAnalysis(outcome.Result)
		}
		return nil
	case model.OutcomeFailed:
		msg := "analysis failed"
		if outcome.Err != nil && outcome.Err.Message != "" {
			msg = outcome.Err.Message
		}
		return c.fail(ctx, seq, errors.New(msg))
	default:
		c.applyIf(seq, AnalysisPending{JobID: outcome.JobID})
		return c.pollAnalysis(ctx, seq, outcome.JobID)
	}
}

// pollAnalysis polls the status endpoint with a growing interval until the
// job settles or the ceiling passes.
func (c *Controller) pollAnalysis(ctx context.Context, seq int, jobID string) error {
	deadline := time.Now().Add(c.pollCeiling)
	interval := c.pollInitial

	for {
		select {
		case <-ctx.Done():
			return c.abort(seq, ctx.Err())
		case <-time.After(interval):
		}

		outcome, err := c.api.AnalysisStatus(ctx, jobID)
		if err != nil {
			return c.fail(ctx, seq, err)
		}

		switch outcome.State {
		case model.OutcomeDone:
			if c.applyIf(seq, AnalysisDone{Result: outcome.Result}) && c.session != nil {
				c.session.SaveAnalysis(outcome.Result)
			}
			return nil
		case model.OutcomeFailed:
			msg := "analysis failed"
			if outcome.Err != nil && outcome.Err.Message != "" {
				msg = outcome.Err.Message
			}
			return c.fail(ctx, seq, errors.New(msg))
		}

		if time.Now().After(deadline) {
			return c.fail(ctx, seq, fmt.Errorf("analysis did not finish within %v", c.pollCeiling))
		}

		interval = time.Duration(float64(interval) * c.pollFactor)
		if interval > c.pollCap {
			interval = c.pollCap
		}
	}
}

// Generate produces the press description from the current form and
// analysis.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state.Analysis == nil {
		c.mu.Unlock()
		return ErrNoAnalysis
	}
	form := c.state.Form
	analysis := c.state.Analysis
	c.mu.Unlock()

	if err := form.Validate(); err != nil {
		return err
	}

	opCtx, seq, err := c.begin(ctx, GenerationStarted{})
	if err != nil {
		return err
	}

	desc, err := c.api.GenerateDescription(opCtx, &model.GenerateRequest{
		ArtistName:        form.ArtistName,
		SongTitle:         form.SongTitle,
		ArtistDescription: form.ArtistDescription,
		Language:          form.Language,
		Analysis:          *analysis,
	})
	if err != nil {
		return c.fail(opCtx, seq, err)
	}

	if c.applyIf(seq, DescriptionReady{Description: desc}) && c.session != nil {
		c.session.SaveDescription(desc)
	}
	return nil
}

// Cancel aborts the in-flight operation, if any. Validation and analysis
// fall back to idle; generation falls back to the completed analysis.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	c.state = Reduce(c.state, Cancelled{})
}

// Reset cancels everything and clears the workflow and the session.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	c.state = Reduce(c.state, ResetAll{})
	c.mu.Unlock()
	if c.session != nil {
		c.session.Clear()
	}
}

// begin starts an operation: it bumps the sequence, installs a cancellable
// context and applies the opening event.
func (c *Controller) begin(ctx context.Context, opening Event) (context.Context, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status.Busy() {
		return nil, 0, ErrBusy
	}
	if c.cancel != nil {
		c.cancel()
	}
	opCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.seq++
	c.state = Reduce(c.state, opening)
	return opCtx, c.seq, nil
}

// applyIf applies the event only when the operation is still current.
func (c *Controller) applyIf(seq int, e Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return false
	}
	c.state = Reduce(c.state, e)
	return true
}

// fail records the failure unless the operation was cancelled, in which
// case the cancellation already settled the state.
func (c *Controller) fail(ctx context.Context, seq int, err error) error {
	if ctx.Err() != nil {
		return c.abort(seq, ctx.Err())
	}
	c.applyIf(seq, Failed{Message: err.Error()})
	return err
}

// abort is the cancelled path: the state was settled by Cancel/Reset, so
// only the error is surfaced.
func (c *Controller) abort(seq int, err error) error {
	c.applyIf(seq, Cancelled{})
	return err
}
