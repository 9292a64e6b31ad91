package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selectors.
const (
	QueueBackendRedis = "redis"
	QueueBackendSQS   = "sqs"

	StorageBackendWebDAV = "webdav"
	StorageBackendS3     = "s3"
)

// Default values
const (
	DefaultAppName           = "vod-worker"
	DefaultLogLevel          = "info"
	DefaultMetricsAddr       = ":9090"
	DefaultWorkerPoolSize    = 4
	DefaultProcessingTimeout = 5 * time.Minute
	DefaultShutdownGrace     = 30 * time.Second
	DefaultMaxDeliveries     = 5
	DefaultRedisStream       = "video_tasks"
	DefaultRedisGroup        = "video_workers"
	DefaultRedisBlock        = 5 * time.Second
	DefaultSQSWaitSeconds    = 20
	DefaultRegion            = "us-east-1"
	DefaultTargetWidth       = 1280
	DefaultTargetHeight      = 720
	DefaultClipDuration      = 30 * time.Second
	DefaultTargetFormat      = "mp4"
)

// Config holds all worker configuration, resolved once at startup.
type Config struct {
	AppName  string
	LogLevel string

	DatabaseDSN string

	QueueBackend string
	Redis        RedisConfig
	SQS          SQSConfig

	StorageBackend string
	WebDAV         WebDAVConfig
	S3             S3Config

	WorkerPoolSize    int
	ProcessingTimeout time.Duration
	MetricsAddr       string
	ShutdownGrace     time.Duration

	Processing ProcessingConfig

	OTLPEndpoint string
}

// RedisConfig holds the consumer-group stream backend parameters.
type RedisConfig struct {
	Addr           string
	Username       string
	Password       string
	Stream         string
	Group          string
	ConsumerPrefix string
	BlockTimeout   time.Duration
	MaxDeliveries  int
}

// SQSConfig holds the visibility-timeout backend parameters.
type SQSConfig struct {
	QueueURL      string
	Region        string
	WaitSeconds   int32
	MaxDeliveries int
}

// WebDAVConfig holds WebDAV storage parameters.
type WebDAVConfig struct {
	BaseURL  string
	Root     string
	Username string
	Password string
}

// S3Config holds S3 storage parameters. AccessKey/SecretKey are optional and
// fall back to the default credential chain; Endpoint enables S3-compatible
// stores with path-style addressing.
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	KeyPrefix string
}

// ProcessingConfig is the per-task transcoding profile.
type ProcessingConfig struct {
	TargetWidth       int
	TargetHeight      int
	TargetFormat      string
	ClipDuration      time.Duration
	RemoveAudio       bool
	WatermarkText     string
	WatermarkPosition string
	WatermarkFontSize int
	WatermarkMarginX  int
	WatermarkMarginY  int
	ProcessedBaseURL  string
	FFmpegPath        string
	FFprobePath       string
	TempDir           string
}

// Load reads configuration from the environment and, when present, the given
// env files. It returns a validated Config or a descriptive error.
func Load(envPaths ...string) (*Config, error) {
	paths := envPaths
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := loadIfExists(p); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		AppName:     getEnv("APP_NAME", DefaultAppName),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		QueueBackend: strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendRedis)),
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Username:       os.Getenv("REDIS_USERNAME"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			Stream:         getEnv("REDIS_STREAM", DefaultRedisStream),
			Group:          getEnv("REDIS_GROUP", DefaultRedisGroup),
			ConsumerPrefix: getEnv("REDIS_CONSUMER_PREFIX", DefaultAppName),
			BlockTimeout:   getEnvDuration("REDIS_BLOCK_TIMEOUT", DefaultRedisBlock),
			MaxDeliveries:  getEnvInt("REDIS_MAX_DELIVERIES", DefaultMaxDeliveries),
		},
		SQS: SQSConfig{
			QueueURL:      os.Getenv("SQS_QUEUE_URL"),
			Region:        getEnv("AWS_REGION", DefaultRegion),
			WaitSeconds:   int32(getEnvInt("SQS_WAIT_SECONDS", DefaultSQSWaitSeconds)),
			MaxDeliveries: getEnvInt("SQS_MAX_DELIVERIES", DefaultMaxDeliveries),
		},

		StorageBackend: strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		WebDAV: WebDAVConfig{
			BaseURL:  os.Getenv("WEBDAV_URL"),
			Root:     getEnv("WEBDAV_ROOT", "/"),
			Username: os.Getenv("WEBDAV_USERNAME"),
			Password: os.Getenv("WEBDAV_PASSWORD"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnv("AWS_REGION", DefaultRegion),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			KeyPrefix: os.Getenv("S3_KEY_PREFIX"),
		},

		WorkerPoolSize:    getEnvInt("WORKER_POOL_SIZE", DefaultWorkerPoolSize),
		ProcessingTimeout: getEnvDuration("PROCESSING_TIMEOUT", DefaultProcessingTimeout),
		MetricsAddr:       getEnv("METRICS_ADDR", DefaultMetricsAddr),
		ShutdownGrace:     getEnvDuration("SHUTDOWN_GRACE", DefaultShutdownGrace),

		Processing: ProcessingConfig{
			TargetWidth:       getEnvInt("TARGET_WIDTH", DefaultTargetWidth),
			TargetHeight:      getEnvInt("TARGET_HEIGHT", DefaultTargetHeight),
			TargetFormat:      getEnv("TARGET_FORMAT", DefaultTargetFormat),
			ClipDuration:      getEnvDuration("CLIP_DURATION", DefaultClipDuration),
			RemoveAudio:       getEnvBool("REMOVE_AUDIO", true),
			WatermarkText:     os.Getenv("WATERMARK_TEXT"),
			WatermarkPosition: getEnv("WATERMARK_POSITION", "bottom-right"),
			WatermarkFontSize: getEnvInt("WATERMARK_FONT_SIZE", 48),
			WatermarkMarginX:  getEnvInt("WATERMARK_MARGIN_X", 40),
			WatermarkMarginY:  getEnvInt("WATERMARK_MARGIN_Y", 40),
			ProcessedBaseURL:  os.Getenv("PROCESSED_BASE_URL"),
			FFmpegPath:        os.Getenv("FFMPEG_PATH"),
			FFprobePath:       os.Getenv("FFPROBE_PATH"),
			TempDir:           os.Getenv("VIDEO_TEMP_DIR"),
		},

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and the mandatory parameters of the selected
// queue and storage backends.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseDSN == "" {
		errs = append(errs, "DATABASE_DSN is required")
	}

	switch c.QueueBackend {
	case QueueBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "REDIS_ADDR is required for the redis queue backend")
		}
	case QueueBackendSQS:
		if c.SQS.QueueURL == "" {
			errs = append(errs, "SQS_QUEUE_URL is required for the sqs queue backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendSQS, c.QueueBackend))
	}

	switch c.StorageBackend {
	case StorageBackendWebDAV:
		if c.WebDAV.BaseURL == "" {
			errs = append(errs, "WEBDAV_URL is required for the webdav storage backend")
		}
		if c.WebDAV.Username == "" || c.WebDAV.Password == "" {
			errs = append(errs, "WEBDAV_USERNAME and WEBDAV_PASSWORD are required for the webdav storage backend")
		}
	case StorageBackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, "S3_BUCKET is required for the s3 storage backend")
		}
	case "":
		errs = append(errs, "STORAGE_BACKEND is required")
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendWebDAV, StorageBackendS3, c.StorageBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MaxDeliveries returns the delivery bound of the selected queue backend.
func (c *Config) MaxDeliveries() int {
	if c.QueueBackend == QueueBackendSQS {
		return c.SQS.MaxDeliveries
	}
	return c.Redis.MaxDeliveries
}

func loadIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
