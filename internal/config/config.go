package config

import (
	"os"
	"strings"

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
	Server      ServerConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	S3          S3Config
	Extractor   ExtractorConfig
	Transformer TransformerConfig
	Image       ImageConfig
	Callback    CallbackConfig
	Bus         BusConfig
	Pipeline    PipelineConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	SubmitPerMin     int
	VocabularyPerMin int
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ExtractorConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type TransformerConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type ImageConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	PollInterval int // seconds
	MaxWait      int // seconds
}

type CallbackConfig struct {
	URL         string
	Token       string
	MaxAttempts int
	Timeout     int // seconds
}

type BusConfig struct {
	ProgressChannel   string
	ResultChannel     string
	FailureChannel    string
	VocabularyChannel string
}

type PipelineConfig struct {
	MaxAttempts       int
	StageTimeout      int // seconds
	MaxConcurrent     int // vocabulary fan-out width
	JobTTLHours       int
	MaxUploadMB       int
	ValidateInput     bool
	WorkerConcurrency int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("TRANSFORMER_API_KEY")
	readSecret("IMAGE_API_KEY")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")
	readSecret("CALLBACK_TOKEN")

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
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = viper.BindEnv("ratelimit.vocabulary_per_min", "RATELIMIT_VOCABULARY_PER_MIN")
	_ = viper.BindEnv("s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("s3.region", "S3_REGION")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("extractor.service_url", "EXTRACTOR_SERVICE_URL")
	_ = viper.BindEnv("extractor.timeout", "EXTRACTOR_TIMEOUT")
	_ = viper.BindEnv("transformer.api_key", "TRANSFORMER_API_KEY")
	_ = viper.BindEnv("transformer.base_url", "TRANSFORMER_BASE_URL")
	_ = viper.BindEnv("transformer.model", "TRANSFORMER_MODEL")
	_ = viper.BindEnv("transformer.max_tokens", "TRANSFORMER_MAX_TOKENS")
	_ = viper.BindEnv("transformer.temperature", "TRANSFORMER_TEMPERATURE")
	_ = viper.BindEnv("image.api_key", "IMAGE_API_KEY")
	_ = viper.BindEnv("image.base_url", "IMAGE_BASE_URL")
	_ = viper.BindEnv("image.model", "IMAGE_MODEL")
	_ = viper.BindEnv("image.poll_interval", "IMAGE_POLL_INTERVAL")
	_ = viper.BindEnv("image.max_wait", "IMAGE_MAX_WAIT")
	_ = viper.BindEnv("callback.url", "CALLBACK_URL")
	_ = viper.BindEnv("callback.token", "CALLBACK_TOKEN")
	_ = viper.BindEnv("callback.max_attempts", "CALLBACK_MAX_ATTEMPTS")
	_ = viper.BindEnv("callback.timeout", "CALLBACK_TIMEOUT")
	_ = viper.BindEnv("bus.progress_channel", "BUS_PROGRESS_CHANNEL")
	_ = viper.BindEnv("bus.result_channel", "BUS_RESULT_CHANNEL")
	_ = viper.BindEnv("bus.failure_channel", "BUS_FAILURE_CHANNEL")
	_ = viper.BindEnv("bus.vocabulary_channel", "BUS_VOCABULARY_CHANNEL")
	_ = viper.BindEnv("pipeline.max_attempts", "PIPELINE_MAX_ATTEMPTS")
	_ = viper.BindEnv("pipeline.stage_timeout", "PIPELINE_STAGE_TIMEOUT")
	_ = viper.BindEnv("pipeline.max_concurrent", "PIPELINE_MAX_CONCURRENT")
	_ = viper.BindEnv("pipeline.job_ttl_hours", "PIPELINE_JOB_TTL_HOURS")
	_ = viper.BindEnv("pipeline.max_upload_mb", "PIPELINE_MAX_UPLOAD_MB")
	_ = viper.BindEnv("pipeline.validate_input", "PIPELINE_VALIDATE_INPUT")
	_ = viper.BindEnv("pipeline.worker_concurrency", "PIPELINE_WORKER_CONCURRENCY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.submit_per_min", 10)
	viper.SetDefault("ratelimit.vocabulary_per_min", 30)

	// S3 defaults
	viper.SetDefault("s3.region", "auto")

	// Extractor defaults
	viper.SetDefault("extractor.service_url", "http://localhost:8090")
	viper.SetDefault("extractor.timeout", 120)

	// Transformer defaults
	viper.SetDefault("transformer.base_url", "https://api.anthropic.com")
	viper.SetDefault("transformer.model", "claude-3-5-sonnet-20241022")
	viper.SetDefault("transformer.max_tokens", 4096)
	viper.SetDefault("transformer.temperature", 0.3)

	// Image defaults
	viper.SetDefault("image.base_url", "https://api.replicate.com")
	viper.SetDefault("image.model", "black-forest-labs/flux-schnell")
	viper.SetDefault("image.poll_interval", 2)
	viper.SetDefault("image.max_wait", 120)

	// Callback defaults
	viper.SetDefault("callback.max_attempts", 5)
	viper.SetDefault("callback.timeout", 10)

	// Bus defaults
	viper.SetDefault("bus.progress_channel", "progress-channel")
	viper.SetDefault("bus.result_channel", "result-channel")
	viper.SetDefault("bus.failure_channel", "failure-channel")
	viper.SetDefault("bus.vocabulary_channel", "vocabulary-channel")

	// Pipeline defaults
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.stage_timeout", 120)
	viper.SetDefault("pipeline.max_concurrent", 5)
	viper.SetDefault("pipeline.job_ttl_hours", 24)
	viper.SetDefault("pipeline.max_upload_mb", 50)
	viper.SetDefault("pipeline.validate_input", true)
	viper.SetDefault("pipeline.worker_concurrency", 4)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin:     viper.GetInt("ratelimit.submit_per_min"),
			VocabularyPerMin: viper.GetInt("ratelimit.vocabulary_per_min"),
		},
		S3: S3Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			BucketName:      viper.GetString("s3.bucket_name"),
			PublicURL:       viper.GetString("s3.public_url"),
		},
		Extractor: ExtractorConfig{
			ServiceURL: viper.GetString("extractor.service_url"),
			Timeout:    viper.GetInt("extractor.timeout"),
		},
		Transformer: TransformerConfig{
			APIKey:      viper.GetString("transformer.api_key"),
			BaseURL:     viper.GetString("transformer.base_url"),
			Model:       viper.GetString("transformer.model"),
			MaxTokens:   viper.GetInt("transformer.max_tokens"),
			Temperature: viper.GetFloat64("transformer.temperature"),
		},
		Image: ImageConfig{
			APIKey:       viper.GetString("image.api_key"),
			BaseURL:      viper.GetString("image.base_url"),
			Model:        viper.GetString("image.model"),
			PollInterval: viper.GetInt("image.poll_interval"),
			MaxWait:      viper.GetInt("image.max_wait"),
		},
		Callback: CallbackConfig{
			URL:         viper.GetString("callback.url"),
			Token:       viper.GetString("callback.token"),
			MaxAttempts: viper.GetInt("callback.max_attempts"),
			Timeout:     viper.GetInt("callback.timeout"),
		},
		Bus: BusConfig{
			ProgressChannel:   viper.GetString("bus.progress_channel"),
			ResultChannel:     viper.GetString("bus.result_channel"),
			FailureChannel:    viper.GetString("bus.failure_channel"),
			VocabularyChannel: viper.GetString("bus.vocabulary_channel"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:       viper.GetInt("pipeline.max_attempts"),
			StageTimeout:      viper.GetInt("pipeline.stage_timeout"),
			MaxConcurrent:     viper.GetInt("pipeline.max_concurrent"),
			JobTTLHours:       viper.GetInt("pipeline.job_ttl_hours"),
			MaxUploadMB:       viper.GetInt("pipeline.max_upload_mb"),
			ValidateInput:     viper.GetBool("pipeline.validate_input"),
			WorkerConcurrency: viper.GetInt("pipeline.worker_concurrency"),
		},
	}

	return cfg, nil
}
