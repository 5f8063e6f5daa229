package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Endpoint describes one model backend.
type Endpoint struct {
	Provider string
	Host     string
	Model    string
	APIKey   string
}

// Config holds the application's configuration
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	WebPort  int    `mapstructure:"WEB_PORT" validate:"gt=0,lt=65536"`

	MainLLMProvider   string `mapstructure:"MAIN_LLM_PROVIDER" validate:"oneof=llamacpp openai anthropic google"`
	MainLLMHost       string `mapstructure:"MAIN_LLM_HOST"`
	MainLLMModel      string `mapstructure:"MAIN_LLM_MODEL"`
	MainLLMAPIKey     string `mapstructure:"MAIN_LLM_API_KEY"`
	JudgeLLMProvider  string `mapstructure:"JUDGE_LLM_PROVIDER" validate:"oneof=llamacpp openai anthropic google"`
	JudgeLLMHost      string `mapstructure:"JUDGE_LLM_HOST"`
	JudgeLLMModel     string `mapstructure:"JUDGE_LLM_MODEL"`
	JudgeLLMAPIKey    string `mapstructure:"JUDGE_LLM_API_KEY"`
	EmbeddingProvider string `mapstructure:"EMBEDDING_PROVIDER" validate:"oneof=llamacpp openai"`
	EmbeddingLLMHost  string `mapstructure:"EMBEDDING_LLM_HOST"`
	EmbeddingModel    string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingAPIKey   string `mapstructure:"EMBEDDING_API_KEY"`

	MaxTokens             int           `mapstructure:"MAX_TOKENS" validate:"gte=0"`
	MaxRetries            int           `mapstructure:"MAX_RETRIES" validate:"gt=0"`
	RetryDelaySeconds     time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	LLMBackoffMaxSeconds  time.Duration `mapstructure:"LLM_BACKOFF_MAX_SECONDS"`
	LLMBackoffJitterRatio float64       `mapstructure:"LLM_BACKOFF_JITTER_RATIO"`
	LLMRequestTimeout     time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`
	LLMRateLimitPerSec    float64       `mapstructure:"LLM_RATE_LIMIT_PER_SEC" validate:"gte=0"`
	LLMRateLimitBurst     int           `mapstructure:"LLM_RATE_LIMIT_BURST" validate:"gte=0"`

	MaxIterations     int           `mapstructure:"MAX_ITERATIONS" validate:"gt=0"`
	MaxExecutionTime  time.Duration `mapstructure:"MAX_EXECUTION_TIME"`
	ConsecutiveErrors int           `mapstructure:"CONSECUTIVE_ERRORS" validate:"gt=0"`
	MemoryWindow      int           `mapstructure:"MEMORY_WINDOW" validate:"gte=0"`

	DataPath          string `mapstructure:"DATA_PATH" validate:"required"`
	DocumentationPath string `mapstructure:"DOCUMENTATION_PATH" validate:"required"`
	DataStartDate     string `mapstructure:"DATA_START_DATE" validate:"required,datetime=2006-01-02"`
	DataEndDate       string `mapstructure:"DATA_END_DATE" validate:"required,datetime=2006-01-02"`
	LogsDir           string `mapstructure:"LOGS_DIR" validate:"required"`
	StaticDir         string `mapstructure:"STATIC_DIR" validate:"required"`
	StaticBaseURL     string `mapstructure:"STATIC_BASE_URL" validate:"required"`
	WorkspaceDir      string `mapstructure:"WORKSPACE_DIR" validate:"required"`

	QueryEngine  string `mapstructure:"QUERY_ENGINE" validate:"oneof=python sqlite"`
	QueryVariant string `mapstructure:"QUERY_VARIANT" validate:"oneof=default rag"`

	PythonExecutorAddresses          []string      `mapstructure:"PYTHON_EXECUTOR_ADDRESSES"`
	PythonExecutorCooldownSeconds    time.Duration `mapstructure:"PYTHON_EXECUTOR_COOLDOWN_SECONDS"`
	PythonExecutorDialTimeoutSeconds time.Duration `mapstructure:"PYTHON_EXECUTOR_DIAL_TIMEOUT_SECONDS"`
	PythonExecutorIOTimeoutSeconds   time.Duration `mapstructure:"PYTHON_EXECUTOR_IO_TIMEOUT_SECONDS"`
	PythonExecutorMaxConnections     int           `mapstructure:"PYTHON_EXECUTOR_MAX_CONNECTIONS"`

	RAGResults         int `mapstructure:"RAG_RESULTS" validate:"gt=0"`
	EmbeddingCacheSize int `mapstructure:"EMBEDDING_CACHE_SIZE" validate:"gt=0"`

	TraceStore         string        `mapstructure:"TRACE_STORE" validate:"oneof=sqlite postgres"`
	TraceStoreDSN      string        `mapstructure:"TRACE_STORE_DSN" validate:"required"`
	TraceProject       string        `mapstructure:"TRACE_PROJECT" validate:"required"`
	TraceLookbackHours time.Duration `mapstructure:"TRACE_LOOKBACK_HOURS"`

	BenchmarkWorkers int     `mapstructure:"BENCHMARK_WORKERS" validate:"gt=0"`
	JudgeWorkers     int     `mapstructure:"JUDGE_WORKERS" validate:"gt=0"`
	JudgeThreshold   float64 `mapstructure:"JUDGE_THRESHOLD" validate:"gte=0,lte=1"`
	RunsDir          string  `mapstructure:"RUNS_DIR" validate:"required"`
	BenchmarksDir    string  `mapstructure:"BENCHMARKS_DIR" validate:"required"`

	RateLimitMessagesPerMin int           `mapstructure:"RATE_LIMIT_MESSAGES_PER_MIN" validate:"gt=0"`
	RateLimitBurstSize      int           `mapstructure:"RATE_LIMIT_BURST_SIZE" validate:"gt=0"`
	CleanupInterval         time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	SessionRetentionAge     time.Duration `mapstructure:"SESSION_RETENTION_AGE"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")        // For running locally
	v.AddConfigPath("../")      // For running from docker subdir
	v.AddConfigPath("./config") // Common config folder
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WEB_PORT", 8000)
	v.SetDefault("MAIN_LLM_PROVIDER", "llamacpp")
	v.SetDefault("MAIN_LLM_HOST", "http://localhost:8080")
	v.SetDefault("MAIN_LLM_MODEL", "")
	v.SetDefault("MAIN_LLM_API_KEY", "")
	v.SetDefault("JUDGE_LLM_PROVIDER", "llamacpp")
	v.SetDefault("JUDGE_LLM_HOST", "http://localhost:8082")
	v.SetDefault("JUDGE_LLM_MODEL", "")
	v.SetDefault("JUDGE_LLM_API_KEY", "")
	v.SetDefault("EMBEDDING_PROVIDER", "llamacpp")
	v.SetDefault("EMBEDDING_LLM_HOST", "http://localhost:8081")
	v.SetDefault("EMBEDDING_MODEL", "")
	v.SetDefault("EMBEDDING_API_KEY", "")
	v.SetDefault("MAX_TOKENS", 2048)
	v.SetDefault("MAX_RETRIES", 5)
	v.SetDefault("RETRY_DELAY_SECONDS", 2)
	v.SetDefault("LLM_BACKOFF_MAX_SECONDS", 30)
	v.SetDefault("LLM_BACKOFF_JITTER_RATIO", 0.1)
	v.SetDefault("LLM_REQUEST_TIMEOUT", 300)
	v.SetDefault("LLM_RATE_LIMIT_PER_SEC", 0)
	v.SetDefault("LLM_RATE_LIMIT_BURST", 4)
	v.SetDefault("MAX_ITERATIONS", 15)
	v.SetDefault("MAX_EXECUTION_TIME", 0)
	v.SetDefault("CONSECUTIVE_ERRORS", 3)
	v.SetDefault("MEMORY_WINDOW", 3)
	v.SetDefault("DATA_PATH", "data/orders")
	v.SetDefault("DOCUMENTATION_PATH", "data/data_documentation.yaml")
	v.SetDefault("DATA_START_DATE", "2024-12-01")
	v.SetDefault("DATA_END_DATE", "2025-05-20")
	v.SetDefault("LOGS_DIR", "logs")
	v.SetDefault("STATIC_DIR", "static")
	v.SetDefault("STATIC_BASE_URL", "http://localhost:8000/static")
	v.SetDefault("WORKSPACE_DIR", "workspaces")
	v.SetDefault("QUERY_ENGINE", "python")
	v.SetDefault("QUERY_VARIANT", "default")
	v.SetDefault("PYTHON_EXECUTOR_ADDRESSES", []string{})
	v.SetDefault("PYTHON_EXECUTOR_COOLDOWN_SECONDS", 30)
	v.SetDefault("PYTHON_EXECUTOR_DIAL_TIMEOUT_SECONDS", 5)
	v.SetDefault("PYTHON_EXECUTOR_IO_TIMEOUT_SECONDS", 120)
	v.SetDefault("PYTHON_EXECUTOR_MAX_CONNECTIONS", 4)
	v.SetDefault("RAG_RESULTS", 5)
	v.SetDefault("EMBEDDING_CACHE_SIZE", 1024)
	v.SetDefault("TRACE_STORE", "sqlite")
	v.SetDefault("TRACE_STORE_DSN", "traces.db")
	v.SetDefault("TRACE_PROJECT", "order-analyst")
	v.SetDefault("TRACE_LOOKBACK_HOURS", 2)
	v.SetDefault("BENCHMARK_WORKERS", 16)
	v.SetDefault("JUDGE_WORKERS", 16)
	v.SetDefault("JUDGE_THRESHOLD", 0.8)
	v.SetDefault("RUNS_DIR", "runs")
	v.SetDefault("BENCHMARKS_DIR", "benchmarks")
	v.SetDefault("RATE_LIMIT_MESSAGES_PER_MIN", 20)
	v.SetDefault("RATE_LIMIT_BURST_SIZE", 5)
	v.SetDefault("CLEANUP_INTERVAL", 1)
	v.SetDefault("SESSION_RETENTION_AGE", 24)

	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	config.PythonExecutorAddresses = cleanAddresses(config.PythonExecutorAddresses)
	if len(config.PythonExecutorAddresses) == 0 {
		config.PythonExecutorAddresses = []string{"localhost:9999"}
	}

	// Convert seconds/hours to proper time.Duration
	config.RetryDelaySeconds = config.RetryDelaySeconds * time.Second
	config.LLMBackoffMaxSeconds = config.LLMBackoffMaxSeconds * time.Second
	config.LLMRequestTimeout = config.LLMRequestTimeout * time.Second
	config.MaxExecutionTime = config.MaxExecutionTime * time.Second
	config.PythonExecutorCooldownSeconds = config.PythonExecutorCooldownSeconds * time.Second
	config.PythonExecutorDialTimeoutSeconds = config.PythonExecutorDialTimeoutSeconds * time.Second
	config.PythonExecutorIOTimeoutSeconds = config.PythonExecutorIOTimeoutSeconds * time.Second
	config.TraceLookbackHours = config.TraceLookbackHours * time.Hour
	config.CleanupInterval = config.CleanupInterval * time.Hour
	config.SessionRetentionAge = config.SessionRetentionAge * time.Hour

	if err := Validate(&config); err != nil {
		if logger != nil {
			logger.Fatal("Invalid configuration", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "FATAL: Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	return &config
}

// Validate checks field constraints declared in the struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// MainEndpoint is the model used by the orchestrator, the analyst and the plan validator.
func (c *Config) MainEndpoint() Endpoint {
	return Endpoint{Provider: c.MainLLMProvider, Host: c.MainLLMHost, Model: c.MainLLMModel, APIKey: c.MainLLMAPIKey}
}

// JudgeEndpoint is the secondary model used for answer judging and dataset reformulation.
func (c *Config) JudgeEndpoint() Endpoint {
	return Endpoint{Provider: c.JudgeLLMProvider, Host: c.JudgeLLMHost, Model: c.JudgeLLMModel, APIKey: c.JudgeLLMAPIKey}
}

func (c *Config) EmbeddingEndpoint() Endpoint {
	return Endpoint{Provider: c.EmbeddingProvider, Host: c.EmbeddingLLMHost, Model: c.EmbeddingModel, APIKey: c.EmbeddingAPIKey}
}

func cleanAddresses(addresses []string) []string {
	cleaned := make([]string, 0, len(addresses))
	for _, entry := range addresses {
		// env values arrive as a single comma separated string
		for _, addr := range strings.Split(entry, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				cleaned = append(cleaned, addr)
			}
		}
	}
	return cleaned
}
