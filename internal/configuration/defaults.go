package configuration

import "time"

// Loop defaults.
const (
	DefaultMinAcceptableScore = 800
	DefaultRunCacheTTL        = 24 * time.Hour
	DefaultEvaluationCacheTTL = 24 * time.Hour
	DefaultTaskStatusCacheTTL = 5 * time.Minute
	DefaultProgressBuffer     = 16
)

// Cache defaults.
const (
	DefaultCachePrefix    = "promptloop"
	DefaultRedisAddr      = "localhost:6379"
	DefaultMemorySize     = 10_000
	DefaultClearBatchSize = 1000
	DefaultCacheOpTimeout = 2 * time.Second
	CacheBackendRedis     = "redis"
	CacheBackendMemory    = "memory"
)

// LLM and Temporal endpoint defaults.
const (
	DefaultLLMEndpoint      = "https://api.openai.com/v1"
	DefaultLLMModel         = "gpt-4o-mini"
	DefaultLLMMaxTokens     = 2048
	DefaultLLMTimeout       = 60 * time.Second
	DefaultRequestsPerSec   = 2
	DefaultRequestBurst     = 4
	DefaultGenerationTemp   = 0.7
	DefaultEvaluationTemp   = 0.2
	DefaultTemporalHostPort = "localhost:7233"
)

// Worker and retry defaults: four concurrent runs, three attempts, one to
// ten minute backoff with jitter.
const (
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "prompt-generation"
	DefaultRPCTimeout        = 10 * time.Second
	DefaultWorkerConcurrency = 4
	DefaultActivityTimeout   = 6 * time.Minute
	DefaultHeartbeatTimeout  = time.Minute
	DefaultMaxAttempts       = 3
	DefaultInitialInterval   = time.Minute
	DefaultMaxInterval       = 10 * time.Minute
	DefaultBackoffMultiplier = 2.0
)

// DefaultConfig returns a configuration that validates without any overrides
// and talks to local Redis and Temporal instances.
func DefaultConfig() Config {
	return Config{
		Loop: LoopConfig{
			MinAcceptableScore: DefaultMinAcceptableScore,
			RunCacheTTL:        DefaultRunCacheTTL,
			EvaluationCacheTTL: DefaultEvaluationCacheTTL,
			TaskStatusCacheTTL: DefaultTaskStatusCacheTTL,
			ProgressBuffer:     DefaultProgressBuffer,
		},
		Cache: CacheConfig{
			Backend:          CacheBackendRedis,
			Prefix:           DefaultCachePrefix,
			RedisAddr:        DefaultRedisAddr,
			MemorySize:       DefaultMemorySize,
			ClearBatchSize:   DefaultClearBatchSize,
			OperationTimeout: DefaultCacheOpTimeout,
		},
		LLM: LLMConfig{
			Endpoint:              DefaultLLMEndpoint,
			Model:                 DefaultLLMModel,
			GenerationTemperature: DefaultGenerationTemp,
			EvaluationTemperature: DefaultEvaluationTemp,
			MaxTokens:             DefaultLLMMaxTokens,
			Timeout:               DefaultLLMTimeout,
			RequestsPerSecond:     DefaultRequestsPerSec,
			Burst:                 DefaultRequestBurst,
		},
		Temporal: TemporalConfig{
			HostPort:   DefaultTemporalHostPort,
			Namespace:  DefaultTemporalNamespace,
			TaskQueue:  DefaultTaskQueue,
			RPCTimeout: DefaultRPCTimeout,
		},
		Worker: WorkerConfig{
			Concurrency:      DefaultWorkerConcurrency,
			ActivityTimeout:  DefaultActivityTimeout,
			HeartbeatTimeout: DefaultHeartbeatTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
			UseJitter:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
