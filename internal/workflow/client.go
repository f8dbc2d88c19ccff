package workflow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/pkg/response"
)

// HTTPClient implements API over the Artist Amplifier HTTP endpoints.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates an API client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ValidateAudio runs the server-side pre-check on the local file.
func (c *HTTPClient) ValidateAudio(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(path))},
		"Content-Type":        {contentTypeFor(path)},
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/audio/validate", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach the server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// UploadAudio asks for an upload token, PUTs the file to storage and
// returns everything the analyze call needs to verify the upload later.
func (c *HTTPClient) UploadAudio(ctx context.Context, path string) (*UploadedAudio, error) {
	contentType := contentTypeFor(path)

	var token model.UploadTokenResponse
	if err := c.postJSON(ctx, "/api/upload", model.UploadTokenRequest{
		Path:        filepath.Base(path),
		ContentType: contentType,
	}, &token); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// Hash while uploading so the declared checksum always matches the
	// bytes that actually went over the wire
	hasher := sha256.New()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, token.UploadURL, io.TeeReader(f, hasher))
	if err != nil {
		return nil, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storage rejected the upload (status %d)", resp.StatusCode)
	}

	return &UploadedAudio{
		URL:            token.DownloadURL,
		FileName:       filepath.Base(path),
		Size:           info.Size(),
		Type:           contentType,
		ChecksumSHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// SubmitAnalysis starts the analysis and interprets the two-phase answer.
func (c *HTTPClient) SubmitAnalysis(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisOutcome, error) {
	return c.analysisCall(ctx, http.MethodPost, "/api/audio/analyze", req)
}

// AnalysisStatus resumes waiting on a pending analysis job.
func (c *HTTPClient) AnalysisStatus(ctx context.Context, jobID string) (*model.AnalysisOutcome, error) {
	return c.analysisCall(ctx, http.MethodGet, "/api/audio/analyze/status/"+jobID, nil)
}

// GenerateDescription requests the press description.
func (c *HTTPClient) GenerateDescription(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	var out model.GenerateResponse
	if err := c.postJSON(ctx, "/api/audio/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) analysisCall(ctx context.Context, method, endpoint string, body interface{}) (*model.AnalysisOutcome, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result model.AnalysisResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("unreadable analysis result: %w", err)
		}
		return model.Done(&result), nil
	case http.StatusAccepted:
		var processing model.ProcessingResponse
		if err := json.NewDecoder(resp.Body).Decode(&processing); err != nil {
			return nil, fmt.Errorf("unreadable processing handle: %w", err)
		}
		return model.Pending(processing.JobID), nil
	default:
		return nil, apiError(resp)
	}
}

func (c *HTTPClient) postJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach the server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// friendlyMessages turns stable error codes into something a person can
// act on.
var friendlyMessages = map[string]string{
	response.CodeRateLimited:           "You are sending requests too quickly. Wait a moment and try again.",
	response.CodeSizeMismatch:          "The uploaded file looks incomplete. Upload it again.",
	response.CodeChecksumMismatch:      "The uploaded file arrived corrupted. Upload it again.",
	response.CodeDownloadFailed:        "The server could not fetch your upload. Try again in a moment.",
	response.CodeAnalysisRateLimit:     "The analysis service is busy right now. Try again in a minute.",
	response.CodeAnalysisBadGateway:    "The analysis service is temporarily unavailable. Try again later.",
	response.CodeAnalysisTimeout:       "The analysis is taking too long. Try again with a shorter file.",
	response.CodeAnalysisEmptyResponse: "The analysis returned no usable data. Try again.",
	response.CodeLLMRateLimit:          "The description service is busy right now. Try again in a minute.",
	response.CodeLLMBadGateway:         "The description service is temporarily unavailable. Try again later.",
	response.CodeLLMEmptyResponse:      "No description came back. Try generating again.",
}

// apiError reads the error envelope and returns a user-facing error.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope response.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		if msg, ok := friendlyMessages[envelope.Error.Code]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("%s", envelope.Error.Message)
	}
	return fmt.Errorf("the server answered with status %d", resp.StatusCode)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
