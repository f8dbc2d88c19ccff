package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	MusicAI   MusicAIConfig
	LLM       LLMConfig
	R2        R2Config
	Fetch     FetchConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds the per-endpoint admission limits. Every endpoint
// shares the same sliding window length.
type RateLimitConfig struct {
	WindowMinutes int
	ValidateMax   int
	AnalyzeMax    int
	GenerateMax   int
	UploadMax     int
}

// RetryConfig is one independently tunable retry policy. The analysis and
// generation call sites carry separate instances so their schedules can be
// tuned apart from each other.
type RetryConfig struct {
	BackoffsMS     []int
	CallTimeoutSec int
}

// Backoffs returns the backoff schedule as durations.
func (c RetryConfig) Backoffs() []time.Duration {
	out := make([]time.Duration, len(c.BackoffsMS))
	for i, ms := range c.BackoffsMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// CallTimeout returns the per-attempt wall clock limit.
func (c RetryConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSec) * time.Second
}

type MusicAIConfig struct {
	APIKey   string
	BaseURL  string
	Workflow string

	// Bounded wait windows for the two-phase submit/poll protocol. The
	// submit window stays safely under a 60s request ceiling; status checks
	// use a shorter window so polls turn around quickly.
	SubmitWaitSec int
	PollWaitSec   int

	// Worker-side provider polling
	JobPollIntervalSec int
	JobMaxWaitMin      int

	Retry RetryConfig
}

type LLMConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Retry        RetryConfig
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	UploadTTLMin    int
}

// FetchConfig bounds the download-and-verify step that pulls the uploaded
// audio back out of object storage.
type FetchConfig struct {
	MaxRetries   int // additional attempts after the first
	TimeoutSec   int
	MaxSizeBytes int64
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("MUSIC_AI_API_KEY")
	readSecret("LLM_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("musicai.api_key", "MUSIC_AI_API_KEY")
	_ = viper.BindEnv("musicai.base_url", "MUSIC_AI_BASE_URL")
	_ = viper.BindEnv("musicai.workflow", "MUSIC_AI_WORKFLOW_ANALYZE")
	_ = viper.BindEnv("musicai.submit_wait_sec", "MUSIC_AI_SUBMIT_WAIT_SEC")
	_ = viper.BindEnv("musicai.poll_wait_sec", "MUSIC_AI_POLL_WAIT_SEC")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("llm.system_prompt", "LLM_SYSTEM_PROMPT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ratelimit.window_minutes", 5)
	viper.SetDefault("ratelimit.validate_max", 10)
	viper.SetDefault("ratelimit.analyze_max", 20)
	viper.SetDefault("ratelimit.generate_max", 20)
	viper.SetDefault("ratelimit.upload_max", 30)

	// Music AI defaults
	viper.SetDefault("musicai.base_url", "https://api.music.ai")
	viper.SetDefault("musicai.workflow", "audio-analysis")
	viper.SetDefault("musicai.submit_wait_sec", 55)
	viper.SetDefault("musicai.poll_wait_sec", 25)
	viper.SetDefault("musicai.job_poll_interval_sec", 3)
	viper.SetDefault("musicai.job_max_wait_min", 10)
	viper.SetDefault("musicai.retry.backoffs_ms", []int{250, 750})
	viper.SetDefault("musicai.retry.call_timeout_sec", 30)

	// LLM defaults (OpenAI-compatible chat completions)
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.retry.backoffs_ms", []int{250, 750})
	viper.SetDefault("llm.retry.call_timeout_sec", 30)

	// R2 defaults
	viper.SetDefault("r2.upload_ttl_min", 15)

	// Fetch defaults
	viper.SetDefault("fetch.max_retries", 2)
	viper.SetDefault("fetch.timeout_sec", 60)
	viper.SetDefault("fetch.max_size_bytes", int64(50*1024*1024))

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			WindowMinutes: viper.GetInt("ratelimit.window_minutes"),
			ValidateMax:   viper.GetInt("ratelimit.validate_max"),
			AnalyzeMax:    viper.GetInt("ratelimit.analyze_max"),
			GenerateMax:   viper.GetInt("ratelimit.generate_max"),
			UploadMax:     viper.GetInt("ratelimit.upload_max"),
		},
		MusicAI: MusicAIConfig{
			APIKey:             viper.GetString("musicai.api_key"),
			BaseURL:            viper.GetString("musicai.base_url"),
			Workflow:           viper.GetString("musicai.workflow"),
			SubmitWaitSec:      viper.GetInt("musicai.submit_wait_sec"),
			PollWaitSec:        viper.GetInt("musicai.poll_wait_sec"),
			JobPollIntervalSec: viper.GetInt("musicai.job_poll_interval_sec"),
			JobMaxWaitMin:      viper.GetInt("musicai.job_max_wait_min"),
			Retry: RetryConfig{
				BackoffsMS:     viper.GetIntSlice("musicai.retry.backoffs_ms"),
				CallTimeoutSec: viper.GetInt("musicai.retry.call_timeout_sec"),
			},
		},
		LLM: LLMConfig{
			APIKey:       viper.GetString("llm.api_key"),
			BaseURL:      viper.GetString("llm.base_url"),
			Model:        viper.GetString("llm.model"),
			SystemPrompt: viper.GetString("llm.system_prompt"),
			Retry: RetryConfig{
				BackoffsMS:     viper.GetIntSlice("llm.retry.backoffs_ms"),
				CallTimeoutSec: viper.GetInt("llm.retry.call_timeout_sec"),
			},
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
			UploadTTLMin:    viper.GetInt("r2.upload_ttl_min"),
		},
		Fetch: FetchConfig{
			MaxRetries:   viper.GetInt("fetch.max_retries"),
			TimeoutSec:   viper.GetInt("fetch.timeout_sec"),
			MaxSizeBytes: viper.GetInt64("fetch.max_size_bytes"),
		},
	}

	return cfg, nil
}
