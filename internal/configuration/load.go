package configuration

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// EnvPrefix namespaces environment overrides: loop.max_iterations is read
// from PROMPTLOOP_LOOP_MAX_ITERATIONS.
const EnvPrefix = "PROMPTLOOP"

// Load builds a Config from defaults, a .env file in the working directory if
// present, PROMPTLOOP_* environment variables and, when path is non-empty, a
// config file in any format viper understands. Environment variables win over
// the file. The result is validated before it is returned.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, &domain.ConfigurationError{Field: ".env", Reason: "cannot parse", Cause: err}
	}

	v := viper.New()
	bindDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &domain.ConfigurationError{Field: "config_file", Reason: "cannot read " + path, Cause: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &domain.ConfigurationError{Field: "config", Reason: "cannot decode", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindDefaults registers every key with viper. AutomaticEnv only resolves
// keys viper already knows about, so this is also what makes each option
// overridable from the environment.
func bindDefaults(v *viper.Viper, d Config) {
	v.SetDefault("loop.min_acceptable_score", d.Loop.MinAcceptableScore)
	v.SetDefault("loop.max_iterations", d.Loop.MaxIterations)
	v.SetDefault("loop.run_cache_ttl", d.Loop.RunCacheTTL)
	v.SetDefault("loop.evaluation_cache_ttl", d.Loop.EvaluationCacheTTL)
	v.SetDefault("loop.task_status_cache_ttl", d.Loop.TaskStatusCacheTTL)
	v.SetDefault("loop.progress_buffer", d.Loop.ProgressBuffer)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.prefix", d.Cache.Prefix)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.memory_size", d.Cache.MemorySize)
	v.SetDefault("cache.clear_batch_size", d.Cache.ClearBatchSize)
	v.SetDefault("cache.operation_timeout", d.Cache.OperationTimeout)

	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.generation_temperature", d.LLM.GenerationTemperature)
	v.SetDefault("llm.evaluation_temperature", d.LLM.EvaluationTemperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)

	v.SetDefault("temporal.host_port", d.Temporal.HostPort)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)
	v.SetDefault("temporal.rpc_timeout", d.Temporal.RPCTimeout)

	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.activity_timeout", d.Worker.ActivityTimeout)
	v.SetDefault("worker.heartbeat_timeout", d.Worker.HeartbeatTimeout)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.use_jitter", d.Retry.UseJitter)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
