package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type SchedulerEnv struct {
	MaxConcurrent int           `envconfig:"SCHEDULER_MAX_CONCURRENT" default:"3"`
	Timeout       time.Duration `envconfig:"SCHEDULER_TIMEOUT" default:"300s"`
	MaxRetries    int           `envconfig:"SCHEDULER_MAX_RETRIES" default:"1"`
	BackoffBase   time.Duration `envconfig:"SCHEDULER_BACKOFF_BASE" default:"2s"`
	BackoffCap    time.Duration `envconfig:"SCHEDULER_BACKOFF_CAP" default:"30s"`
}

type RetrievalEnv struct {
	CacheEnabled  bool          `envconfig:"RETRIEVAL_CACHE_ENABLED" default:"true"`
	CacheTTL      time.Duration `envconfig:"RETRIEVAL_CACHE_TTL" default:"1h"`
	QuotaEnabled  bool          `envconfig:"RETRIEVAL_QUOTA_ENABLED" default:"true"`
	ProvidersFile string        `envconfig:"RETRIEVAL_PROVIDERS_FILE" default:".colony/providers.yaml"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".colony/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"colony/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type Env struct {
	BaseEnv
	SchedulerEnv
	RetrievalEnv
	StorageEnv
}

const namespace = "COLONY"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
