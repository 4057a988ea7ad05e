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
	Server      ServerConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Transcode   TranscodeConfig
	RateLimit   RateLimitConfig
	ObjectStore ObjectStoreConfig
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

// StorageConfig locates the media tree: uploads under Root/uploads,
// packaged output under Root/processed.
type StorageConfig struct {
	Root string
}

type TranscodeConfig struct {
	FFmpegBin      string
	FFprobeBin     string
	EncodeTimeout  time.Duration
	PackageTimeout time.Duration
	Concurrency    int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

type RateLimitConfig struct {
	TranscodePerHour int
	UploadPerHour    int
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OBJECT_STORE_ACCESS_KEY_ID")
	readSecret("OBJECT_STORE_SECRET_ACCESS_KEY")

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
	_ = viper.BindEnv("storage.root", "STORAGE_ROOT")
	_ = viper.BindEnv("transcode.ffmpeg_bin", "FFMPEG_BIN")
	_ = viper.BindEnv("transcode.ffprobe_bin", "FFPROBE_BIN")
	_ = viper.BindEnv("transcode.encode_timeout", "TRANSCODE_ENCODE_TIMEOUT")
	_ = viper.BindEnv("transcode.package_timeout", "TRANSCODE_PACKAGE_TIMEOUT")
	_ = viper.BindEnv("transcode.concurrency", "TRANSCODE_CONCURRENCY")
	_ = viper.BindEnv("transcode.max_attempts", "TRANSCODE_MAX_ATTEMPTS")
	_ = viper.BindEnv("transcode.retry_base_delay", "TRANSCODE_RETRY_BASE_DELAY")
	_ = viper.BindEnv("ratelimit.transcode_per_hour", "RATELIMIT_TRANSCODE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("objectstore.endpoint", "OBJECT_STORE_ENDPOINT")
	_ = viper.BindEnv("objectstore.region", "OBJECT_STORE_REGION")
	_ = viper.BindEnv("objectstore.access_key_id", "OBJECT_STORE_ACCESS_KEY_ID")
	_ = viper.BindEnv("objectstore.secret_access_key", "OBJECT_STORE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("objectstore.bucket_name", "OBJECT_STORE_BUCKET_NAME")
	_ = viper.BindEnv("objectstore.public_url", "OBJECT_STORE_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.root", "./data")
	viper.SetDefault("transcode.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("transcode.ffprobe_bin", "ffprobe")
	viper.SetDefault("transcode.encode_timeout", "10m")
	viper.SetDefault("transcode.package_timeout", "5m")
	// concurrency 0 means one worker slot per CPU
	viper.SetDefault("transcode.concurrency", 0)
	viper.SetDefault("transcode.max_attempts", 3)
	viper.SetDefault("transcode.retry_base_delay", "2s")
	viper.SetDefault("ratelimit.transcode_per_hour", 20)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("objectstore.region", "auto")

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
		Storage: StorageConfig{
			Root: viper.GetString("storage.root"),
		},
		Transcode: TranscodeConfig{
			FFmpegBin:      viper.GetString("transcode.ffmpeg_bin"),
			FFprobeBin:     viper.GetString("transcode.ffprobe_bin"),
			EncodeTimeout:  viper.GetDuration("transcode.encode_timeout"),
			PackageTimeout: viper.GetDuration("transcode.package_timeout"),
			Concurrency:    viper.GetInt("transcode.concurrency"),
			MaxAttempts:    viper.GetInt("transcode.max_attempts"),
			RetryBaseDelay: viper.GetDuration("transcode.retry_base_delay"),
		},
		RateLimit: RateLimitConfig{
			TranscodePerHour: viper.GetInt("ratelimit.transcode_per_hour"),
			UploadPerHour:    viper.GetInt("ratelimit.upload_per_hour"),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        viper.GetString("objectstore.endpoint"),
			Region:          viper.GetString("objectstore.region"),
			AccessKeyID:     viper.GetString("objectstore.access_key_id"),
			SecretAccessKey: viper.GetString("objectstore.secret_access_key"),
			BucketName:      viper.GetString("objectstore.bucket_name"),
			PublicURL:       viper.GetString("objectstore.public_url"),
		},
	}

	return cfg, nil
}
