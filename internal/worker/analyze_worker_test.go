package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/internal/transform"
	"github.com/artistamplifier/api/internal/websocket"
)

// scriptedAnalyzer plays back a fixed sequence of provider job states.
type scriptedAnalyzer struct {
	states []*client.ProviderJob
	errs   []error
	calls  int
}

func (s *scriptedAnalyzer) UploadFile(ctx context.Context, path, contentType string) (*client.UploadTarget, error) {
	return nil, nil
}

func (s *scriptedAnalyzer) CreateJob(ctx context.Context, name, inputURL string) (string, error) {
	return "", nil
}

func (s *scriptedAnalyzer) GetJob(ctx context.Context, jobID string) (*client.ProviderJob, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.states) {
		idx = len(s.states) - 1
	}
	if s.errs != nil && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.states[idx], nil
}

func (s *scriptedAnalyzer) IsConfigured() bool { return true }

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

func setupWorker(t *testing.T, analyzer client.AudioAnalyzer, maxWait time.Duration) (*AnalyzeWorker, *service.AnalysisService, service.JobStore) {
	t.Helper()

	store := service.NewMemoryJobStore()
	svc := service.NewAnalysisService(
		store, noopEnqueuer{}, analyzer, nil,
		transform.NewTransformer("music.ai"),
		client.RetryPolicy{Backoffs: []time.Duration{time.Millisecond}, CallTimeout: time.Second},
		50*1024*1024, time.Second, time.Second,
	)

	hub := websocket.NewHub()
	go hub.Run()

	w := NewAnalyzeWorker(
		svc, analyzer,
		transform.NewTransformer("music.ai"),
		client.RetryPolicy{Backoffs: []time.Duration{time.Millisecond}, CallTimeout: time.Second},
		hub,
		time.Millisecond, maxWait,
	)
	return w, svc, store
}

func seedJob(t *testing.T, store service.JobStore, status model.JobStatus) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:            "job-1",
		Type:          model.JobTypeAnalyze,
		Status:        status,
		ProviderJobID: "prov-1",
		FileName:      "song.mp3",
		Size:          2048,
		ContentType:   "audio/mpeg",
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.Save(context.Background(), job))
	return job
}

func analyzeTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(model.AnalyzeTaskPayload{JobID: jobID})
	require.NoError(t, err)
	return asynq.NewTask(service.TaskTypeAnalyze, data)
}

func TestProcessTask_Success(t *testing.T) {
	analyzer := &scriptedAnalyzer{states: []*client.ProviderJob{
		{ID: "prov-1", Status: client.ProviderStatusQueued},
		{ID: "prov-1", Status: client.ProviderStatusStarted},
		{ID: "prov-1", Status: client.ProviderStatusSucceeded, Result: map[string]interface{}{
			"bpm":         float64(122),
			"energyLevel": "low",
			"genres":      []interface{}{"ambient"},
		}},
	}}
	w, _, store := setupWorker(t, analyzer, time.Second)
	seedJob(t, store, model.JobStatusQueued)

	require.NoError(t, w.ProcessTask(context.Background(), analyzeTask(t, "job-1")))

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, job.Status)
	assert.Equal(t, 100, job.Progress)

	var result model.AnalysisResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 122, result.Data.Tempo)
	assert.Equal(t, "calm", result.Data.Mood)
	assert.Equal(t, "song.mp3", result.Data.FileName)
	assert.Equal(t, []string{"ambient"}, result.Data.AnalyzedTrack.Genres)
}

func TestProcessTask_TerminalJobIsNoOp(t *testing.T) {
	analyzer := &scriptedAnalyzer{states: []*client.ProviderJob{
		{ID: "prov-1", Status: client.ProviderStatusSucceeded},
	}}
	w, _, store := setupWorker(t, analyzer, time.Second)
	seedJob(t, store, model.JobStatusSucceeded)

	require.NoError(t, w.ProcessTask(context.Background(), analyzeTask(t, "job-1")))
	assert.Equal(t, 0, analyzer.calls, "a redelivered task must not touch the provider")
}

func TestProcessTask_ProviderFailure(t *testing.T) {
	analyzer := &scriptedAnalyzer{states: []*client.ProviderJob{
		{
			ID:     "prov-1",
			Status: client.ProviderStatusFailed,
			Error: &struct {
				Code    string `json:"code,omitempty"`
				Message string `json:"message,omitempty"`
			}{Message: "unsupported sample rate"},
		},
	}}
	w, _, store := setupWorker(t, analyzer, time.Second)
	seedJob(t, store, model.JobStatusQueued)

	require.NoError(t, w.ProcessTask(context.Background(), analyzeTask(t, "job-1")),
		"terminal provider failures are recorded, not redelivered")

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "ANALYSIS_FAILED", job.Error.Code)
	assert.Equal(t, "unsupported sample rate", job.Error.Message)
}

func TestProcessTask_PersistentRateLimit(t *testing.T) {
	rateLimited := &client.ProviderError{Status: 429, Code: "RATE_LIMITED", Message: "slow down"}
	analyzer := &scriptedAnalyzer{
		states: []*client.ProviderJob{nil, nil},
		errs:   []error{rateLimited, rateLimited},
	}
	w, _, store := setupWorker(t, analyzer, time.Second)
	seedJob(t, store, model.JobStatusQueued)

	require.NoError(t, w.ProcessTask(context.Background(), analyzeTask(t, "job-1")))

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "ANALYSIS_RATE_LIMIT", job.Error.Code)
	assert.Equal(t, 2, analyzer.calls, "one backoff gives two attempts")
}

func TestProcessTask_Timeout(t *testing.T) {
	analyzer := &scriptedAnalyzer{states: []*client.ProviderJob{
		{ID: "prov-1", Status: client.ProviderStatusStarted},
	}}
	w, _, store := setupWorker(t, analyzer, 10*time.Millisecond)
	seedJob(t, store, model.JobStatusQueued)

	require.NoError(t, w.ProcessTask(context.Background(), analyzeTask(t, "job-1")))

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "ANALYSIS_TIMEOUT", job.Error.Code)
}
