package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Server settings
	ServerPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Debug           bool

	// Application paths
	TempDir string
	Log     LogConfig

	Database      DatabaseConfig
	Tools         ToolsConfig
	Transcription TranscriptionConfig
	CORS          CORSConfig
	RateLimit     RateLimitConfig
	Retention     RetentionConfig
	Publish       PublishConfig

	Version string
}

type LogConfig struct {
	Dir    string
	Level  string
	Format string // "text", "json" or "auto"
}

type DatabaseConfig struct {
	Path           string
	MaxConnections int
}

type ToolsConfig struct {
	FFmpegPath   string
	FFprobePath  string
	YtDlpPath    string
	PythonRunner string
	ScriptsPath  string
}

type TranscriptionConfig struct {
	CPUModel    string
	GPUModel    string
	Timeout     time.Duration
	Environment []string
}

type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}

type RetentionConfig struct {
	Enabled  bool
	TTL      time.Duration
	Schedule string
}

type PublishConfig struct {
	Enabled       bool
	AccessKey     string
	SecretKey     string
	Region        string
	Endpoint      string
	Bucket        string
	PublicBaseURL string
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the process
// environment. Environment variables win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load(getEnvDefault("ENV_FILE", ".env"))

	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := src.build()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *source) build() *Config {
	return &Config{
		ServerPort:      s.getEnv("SERVER_PORT", "8080"),
		ReadTimeout:     s.getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    s.getEnvAsDuration("WRITE_TIMEOUT", 30*time.Minute),
		IdleTimeout:     s.getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:  s.getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Minute),
		ShutdownTimeout: s.getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Debug:           s.getEnvAsBool("DEBUG", false),

		TempDir: s.getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "yt-clip")),
		Log: LogConfig{
			Dir:    s.getEnv("LOG_DIR", "./logs"),
			Level:  s.getEnv("LOG_LEVEL", "info"),
			Format: s.getEnv("LOG_FORMAT", "auto"),
		},

		Database: DatabaseConfig{
			Path:           s.getEnv("DB_PATH", "./data/yt-clip.db"),
			MaxConnections: s.getEnvAsInt("DB_MAX_CONNECTIONS", 1),
		},

		Tools: ToolsConfig{
			FFmpegPath:   s.getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:  s.getEnv("FFPROBE_PATH", "ffprobe"),
			YtDlpPath:    s.getEnv("YTDLP_PATH", "yt-dlp"),
			PythonRunner: s.getEnv("PYTHON_RUNNER", "uv"),
			ScriptsPath:  s.getEnv("SCRIPTS_PATH", "./scripts"),
		},

		Transcription: TranscriptionConfig{
			CPUModel:    s.getEnv("WHISPER_CPU_MODEL", "openai/whisper-tiny"),
			GPUModel:    s.getEnv("WHISPER_GPU_MODEL", "openai/whisper-base"),
			Timeout:     s.getEnvAsDuration("TRANSCRIBE_TIMEOUT", 15*time.Minute),
			Environment: s.getEnvAsStringSlice("TRANSCRIBE_ENV", nil),
		},

		CORS: CORSConfig{
			Enabled:          s.getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins:   s.getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   s.getEnvAsStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders:   s.getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
			AllowCredentials: s.getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           s.getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:           s.getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: s.getEnvAsInt("RATE_LIMIT_RPM", 30),
			BurstSize:         s.getEnvAsInt("RATE_LIMIT_BURST", 5),
		},

		Retention: RetentionConfig{
			Enabled:  s.getEnvAsBool("RETENTION_ENABLED", true),
			TTL:      s.getEnvAsDuration("RETENTION_TTL", 24*time.Hour),
			Schedule: s.getEnv("RETENTION_SCHEDULE", "@every 30m"),
		},

		Publish: PublishConfig{
			Enabled:       s.getEnvAsBool("PUBLISH_ENABLED", false),
			AccessKey:     s.getEnv("PUBLISH_ACCESS_KEY", ""),
			SecretKey:     s.getEnv("PUBLISH_SECRET_KEY", ""),
			Region:        s.getEnv("PUBLISH_REGION", "us-east-1"),
			Endpoint:      s.getEnv("PUBLISH_ENDPOINT", ""),
			Bucket:        s.getEnv("PUBLISH_BUCKET", ""),
			PublicBaseURL: s.getEnv("PUBLISH_PUBLIC_URL", ""),
		},

		Version: s.getEnv("VERSION", "dev"),
	}
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}
	if err := validateTimeouts(c); err != nil {
		return err
	}
	return validateServices(c)
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.Log.Dir, "log directory"},
		{c.TempDir, "temp directory"},
		{filepath.Dir(c.Database.Path), "database directory"},
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", p.name)
		}
	}
	return nil
}

func validateTimeouts(c *Config) error {
	timeouts := []struct {
		value time.Duration
		name  string
	}{
		{c.ReadTimeout, "read timeout"},
		{c.WriteTimeout, "write timeout"},
		{c.IdleTimeout, "idle timeout"},
		{c.RequestTimeout, "request timeout"},
		{c.Transcription.Timeout, "transcribe timeout"},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}
	return nil
}

func validateServices(c *Config) error {
	if c.ServerPort == "" {
		return errors.New("server port is required")
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Retention.Enabled && c.Retention.TTL <= 0 {
		return errors.New("retention ttl must be positive")
	}
	if c.Publish.Enabled && c.Publish.Bucket == "" {
		return errors.New("publish bucket is required when publishing is enabled")
	}
	return nil
}

// source resolves a key from the environment first, then from the optional
// TOML file whose top-level keys use the same names as the variables.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	for k, v := range raw {
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			s.file[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			s.file[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if value, exists := os.LookupEnv(key); exists {
		return value, true
	}
	value, exists := s.file[key]
	return value, exists
}

func (s *source) getEnv(key, defaultValue string) string {
	if value, exists := s.lookup(key); exists {
		return value
	}
	return defaultValue
}

func (s *source) getEnvAsInt(key string, defaultValue int) int {
	if value, exists := s.lookup(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		warnInvalid(key, value, defaultValue)
	}
	return defaultValue
}

func (s *source) getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := s.lookup(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		warnInvalid(key, value, defaultValue)
	}
	return defaultValue
}

func (s *source) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := s.lookup(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		warnInvalid(key, value, defaultValue)
	}
	return defaultValue
}

func (s *source) getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := s.lookup(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return defaultValue
}

func getEnvDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func warnInvalid(key, value string, defaultValue any) {
	logrus.WithFields(logrus.Fields{
		"key":          key,
		"value":        value,
		"defaultValue": defaultValue,
	}).Warn("Invalid configuration value, using default")
}
