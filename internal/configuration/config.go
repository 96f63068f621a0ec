// Package configuration defines the immutable, validated configuration of the
// prompt refinement service. A Config is built once at startup from defaults,
// an optional config file, a .env file and PROMPTLOOP_* environment variables,
// validated, and then passed by value to every component.
package configuration

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// Config holds every option recognized by the service.
type Config struct {
	Loop     LoopConfig     `mapstructure:"loop"`
	Cache    CacheConfig    `mapstructure:"cache"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Log      LogConfig      `mapstructure:"log"`
}

// LoopConfig controls the refine/evaluate iteration loop and its caches.
type LoopConfig struct {
	// MinAcceptableScore ends a run as soon as an evaluation reaches it.
	MinAcceptableScore int `mapstructure:"min_acceptable_score" validate:"min=0,max=1000"`
	// MaxIterations caps evaluations per run. Zero means unbounded.
	MaxIterations int `mapstructure:"max_iterations" validate:"min=0"`
	// RunCacheTTL is the lifetime of a cached run result.
	RunCacheTTL time.Duration `mapstructure:"run_cache_ttl" validate:"gt=0"`
	// EvaluationCacheTTL is the lifetime of a cached evaluation.
	EvaluationCacheTTL time.Duration `mapstructure:"evaluation_cache_ttl" validate:"gt=0"`
	// TaskStatusCacheTTL is the lifetime of a terminal task snapshot.
	TaskStatusCacheTTL time.Duration `mapstructure:"task_status_cache_ttl" validate:"gt=0"`
	// ProgressBuffer bounds the progress event queue of a single run.
	ProgressBuffer int `mapstructure:"progress_buffer" validate:"min=1"`
}

// CacheConfig selects and tunes the cache backing store.
type CacheConfig struct {
	Backend          string        `mapstructure:"backend" validate:"oneof=redis memory"`
	Prefix           string        `mapstructure:"prefix" validate:"required,printascii"`
	RedisAddr        string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword    string        `mapstructure:"redis_password" json:"-"`
	RedisDB          int           `mapstructure:"redis_db" validate:"min=0"`
	MemorySize       int           `mapstructure:"memory_size" validate:"min=1"`
	ClearBatchSize   int           `mapstructure:"clear_batch_size" validate:"min=1"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"gt=0"`
}

// LLMConfig configures the OpenAI-compatible chat endpoint used by both
// collaborators.
type LLMConfig struct {
	Endpoint              string        `mapstructure:"endpoint" validate:"required,url"`
	APIKey                string        `mapstructure:"api_key" json:"-"`
	Model                 string        `mapstructure:"model" validate:"required"`
	GenerationTemperature float64       `mapstructure:"generation_temperature" validate:"min=0,max=2"`
	EvaluationTemperature float64       `mapstructure:"evaluation_temperature" validate:"min=0,max=2"`
	MaxTokens             int           `mapstructure:"max_tokens" validate:"min=1"`
	Timeout               time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond     float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst                 int           `mapstructure:"burst" validate:"min=1"`
}

// TemporalConfig locates the Temporal frontend that acts as the task queue.
type TemporalConfig struct {
	HostPort   string        `mapstructure:"host_port" validate:"required,hostname_port"`
	Namespace  string        `mapstructure:"namespace" validate:"required"`
	TaskQueue  string        `mapstructure:"task_queue" validate:"required"`
	RPCTimeout time.Duration `mapstructure:"rpc_timeout" validate:"gt=0"`
}

// WorkerConfig bounds how many runs execute concurrently on one worker.
type WorkerConfig struct {
	Concurrency      int           `mapstructure:"concurrency" validate:"min=1"`
	ActivityTimeout  time.Duration `mapstructure:"activity_timeout" validate:"gt=0"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" validate:"gt=0"`
}

// RetryConfig is the run-level retry policy applied by the asynchronous
// boundary. Exponential backoff with optional full jitter.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `mapstructure:"multiplier" validate:"gte=1"`
	UseJitter       bool          `mapstructure:"use_jitter"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

var validate = newValidator()

// newValidator reports field paths using the mapstructure names so errors
// point at the same dotted keys operators set.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every option and returns a *domain.ConfigurationError
// naming the first offending key.
func (c Config) Validate() error {
	return configError(validate.Struct(c), "Config.", "")
}

// Validate checks the loop section on its own, for components constructed
// without a full Config.
func (l LoopConfig) Validate() error {
	return configError(validate.Struct(l), "LoopConfig.", "loop.")
}

func configError(err error, trim, prefix string) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := prefix + strings.TrimPrefix(fe.Namespace(), trim)
		reason := fmt.Sprintf("failed %q constraint", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %q constraint (%s)", fe.Tag(), fe.Param())
		}
		return &domain.ConfigurationError{Field: field, Reason: reason, Cause: err}
	}
	return &domain.ConfigurationError{Field: "config", Reason: "validation failed", Cause: err}
}

// BoundedIterations reports the configured iteration budget and whether one
// is set at all.
func (l LoopConfig) BoundedIterations() (int, bool) {
	return l.MaxIterations, l.MaxIterations > 0
}
