package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/artistamplifier/api/internal/config"
)

// Provider job statuses as the Music AI API reports them.
const (
	ProviderStatusQueued    = "QUEUED"
	ProviderStatusStarted   = "STARTED"
	ProviderStatusSucceeded = "SUCCEEDED"
	ProviderStatusFailed    = "FAILED"
)

// AudioAnalyzer defines the interface for audio analysis operations
type AudioAnalyzer interface {
	UploadFile(ctx context.Context, path, contentType string) (*UploadTarget, error)
	CreateJob(ctx context.Context, name, inputURL string) (string, error)
	GetJob(ctx context.Context, jobID string) (*ProviderJob, error)
	IsConfigured() bool
}

// MusicAIClient implements AudioAnalyzer for the Music AI API
type MusicAIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	workflow   string
}

// UploadTarget is a pair of temporary URLs: PUT the file to UploadURL, then
// hand DownloadURL to the job as its input.
type UploadTarget struct {
	UploadURL   string `json:"uploadUrl"`
	DownloadURL string `json:"downloadUrl"`
}

type createJobRequest struct {
	Name     string            `json:"name"`
	Workflow string            `json:"workflow"`
	Params   map[string]string `json:"params"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

// ProviderJob is the raw provider-side job record. Result keys depend on
// the workflow, so it stays an untyped map until the transformer shapes it.
type ProviderJob struct {
	ID     string                 `json:"id"`
	Status string                 `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// NewMusicAIClient creates a new Music AI API client. Outbound calls are
// throttled to stay inside the provider's request quota.
func NewMusicAIClient(cfg *config.MusicAIConfig) *MusicAIClient {
	return &MusicAIClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		workflow: cfg.Workflow,
	}
}

// UploadFile requests a temporary upload slot and PUTs the file into it.
func (c *MusicAIClient) UploadFile(ctx context.Context, path, contentType string) (*UploadTarget, error) {
	var target UploadTarget
	if err := c.get(ctx, "/v1/upload", &target); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, f)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	log.Printf("[Music AI] → PUT upload (%d bytes)", info.Size())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Status:  resp.StatusCode,
			Code:    "UPLOAD_FAILED",
			Message: fmt.Sprintf("upload rejected with status %d", resp.StatusCode),
		}
	}

	return &target, nil
}

// CreateJob starts an analysis job over the given input URL and returns the
// provider job ID.
func (c *MusicAIClient) CreateJob(ctx context.Context, name, inputURL string) (string, error) {
	body := createJobRequest{
		Name:     name,
		Workflow: c.workflow,
		Params:   map[string]string{"inputUrl": inputURL},
	}

	var result createJobResponse
	if err := c.post(ctx, "/v1/job", body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ProviderError{
			Status:  http.StatusBadGateway,
			Code:    "ANALYSIS_EMPTY_RESPONSE",
			Message: "provider returned no job id",
		}
	}
	return result.ID, nil
}

// GetJob retrieves the current state of a provider job.
func (c *MusicAIClient) GetJob(ctx context.Context, jobID string) (*ProviderJob, error) {
	var job ProviderJob
	if err := c.get(ctx, "/v1/job/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// post sends a POST request with JSON body
func (c *MusicAIClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *MusicAIClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *MusicAIClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	log.Printf("[Music AI] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Music AI] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Music AI] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Music AI] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerErrorFromBody(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Music AI] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// providerErrorFromBody builds a ProviderError, keeping the provider's own
// code and message when the body parses as an error envelope.
func providerErrorFromBody(status int, body []byte) *ProviderError {
	pe := &ProviderError{
		Status:  status,
		Message: fmt.Sprintf("provider answered with status %d", status),
		Details: string(body),
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			pe.Code = envelope.Error.Code
			pe.Message = envelope.Error.Message
		} else if envelope.Message != "" {
			pe.Message = envelope.Message
		}
	}

	if pe.Code == "" {
		switch {
		case status == 429:
			pe.Code = "RATE_LIMITED"
		case status >= 500:
			pe.Code = "UPSTREAM_ERROR"
		default:
			pe.Code = "PROVIDER_ERROR"
		}
	}

	return pe
}

// IsConfigured returns true if the client has valid configuration
func (c *MusicAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
