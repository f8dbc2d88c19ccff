package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/config"
	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/handler"
	"github.com/artistamplifier/api/internal/middleware"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/internal/transform"
)

const maxAudioSize = 50 * 1024 * 1024

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *service.MemoryJobStore
}

// noopEnqueuer accepts tasks without a broker. The e2e suite never runs the
// worker, so pending jobs stay pending until a test settles them by hand.
type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

// setupApp creates a Fiber app identical to main.go but with an in-memory
// job store and unconfigured external clients. This triggers mock/fallback
// responses in all services, so no Redis or provider account is needed.
// Rate limits are set very high so tests don't get blocked.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return buildApp(t, 10000, &config.LLMConfig{})
}

// setupAppWithAnalyzeLimit builds the same app with a specific per-IP limit
// on the analyze endpoint, for exercising the rate limiter itself.
func setupAppWithAnalyzeLimit(t *testing.T, analyzeMax int) *testApp {
	t.Helper()
	return buildApp(t, analyzeMax, &config.LLMConfig{})
}

// setupAppWithLLM builds the app with a configured language-model client so
// tests can stand in for the real upstream with an httptest server.
func setupAppWithLLM(t *testing.T, llmCfg *config.LLMConfig) *testApp {
	t.Helper()
	return buildApp(t, 10000, llmCfg)
}

func buildApp(t *testing.T, analyzeMax int, llmCfg *config.LLMConfig) *testApp {
	t.Helper()

	validate := validator.New()

	// External clients fall back to mocks unless a test configures them
	musicaiClient := client.NewMusicAIClient(&config.MusicAIConfig{}) // no API key → mock
	llmClient := client.NewLLMClient(llmCfg)
	// r2Client = nil → mock

	retry := client.RetryPolicy{
		Backoffs:    []time.Duration{time.Millisecond},
		CallTimeout: time.Second,
	}

	jobStore := service.NewMemoryJobStore()
	analysisService := service.NewAnalysisService(
		jobStore,
		noopEnqueuer{},
		musicaiClient,
		fetch.NewFetcher(2, 5*time.Second),
		transform.NewTransformer("music.ai"),
		retry,
		maxAudioSize,
		100*time.Millisecond, // submit wait window
		50*time.Millisecond,  // poll wait window
	)
	analysisService.SetWatchInterval(5 * time.Millisecond)
	generateService := service.NewGenerateService(llmClient, retry, "")
	uploadService := service.NewUploadService(nil, 15*time.Minute)

	// Handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, validate)
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	validateHandler := handler.NewValidateHandler(maxAudioSize)

	rateLimiter := middleware.NewRateLimiter()
	window := 5 * time.Minute

	app := fiber.New(fiber.Config{
		BodyLimit: maxAudioSize,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"musicai": musicaiClient.IsConfigured(),
				"llm":     llmClient.IsConfigured(),
				"r2":      false,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	audio := api.Group("/audio")
	audio.Post("/validate", rateLimiter.ValidateLimit(10000, window), validateHandler.Validate)
	audio.Post("/analyze", rateLimiter.AnalyzeLimit(analyzeMax, window), analysisHandler.Analyze)
	audio.Get("/analyze/status/:jobId", analysisHandler.Status)
	audio.Post("/generate", rateLimiter.GenerateLimit(10000, window), generateHandler.Generate)

	api.Post("/upload", rateLimiter.UploadLimit(10000, window), uploadHandler.Token)

	return &testApp{app: app, store: jobStore}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode digs the stable error code out of an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}
