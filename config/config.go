package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var gitSHA string
var buildDate string

const prefix = "SHORTS_SITE_"

type Config struct {
	Addr         string
	DataDir      string
	ConfigDir    string
	BaseURL      string
	LogLevel     string
	PollInterval time.Duration
	Secure       bool

	Quality        string
	FontFile       string
	SceneThreshold float64

	WhisperBin   string
	WhisperModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Storage S3Config

	RedisAddr string
	RedisDB   int

	AMQPURL      string
	AMQPExchange string

	SessionAuthKey []byte
	TokenSecret    string
	Publish        PublishConfig
}

// S3Config is only used when Backend is "s3".
type S3Config struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type PublishConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	// APIEndpoint overrides the YouTube Data API base URL. Empty uses the default.
	APIEndpoint  string
	RedirectURL  string
	Scopes       []string
}

func (p PublishConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.TokenURL != "" && p.AuthURL != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:           getString("ADDR", ":8080"),
		DataDir:        GetDataDir(),
		ConfigDir:      GetConfigDir(),
		BaseURL:        strings.TrimRight(getString("BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:       getString("LOG_LEVEL", "debug"),
		Secure:         GetSecure(),
		Quality:        getString("QUALITY", "medium"),
		FontFile:       getString("FONT_FILE", "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"),
		WhisperBin:     getString("WHISPER_BIN", ""),
		WhisperModel:   getString("WHISPER_MODEL", "base"),
		OpenAIAPIKey:   getString("OPENAI_API_KEY", ""),
		OpenAIModel:    getString("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  strings.TrimRight(getString("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		RedisAddr:      getString("REDIS_ADDR", ""),
		AMQPURL:        getString("AMQP_URL", ""),
		AMQPExchange:   getString("AMQP_EXCHANGE", "shorts.jobs"),
		SessionAuthKey: []byte(getString("SESSION_AUTH_KEY", "")),
		TokenSecret:    getString("TOKEN_SECRET", ""),
		Storage: S3Config{
			Backend:   getString("STORAGE", "local"),
			Endpoint:  getString("S3_ENDPOINT", ""),
			AccessKey: getString("S3_ACCESS_KEY", ""),
			SecretKey: getString("S3_SECRET_KEY", ""),
			Bucket:    getString("S3_BUCKET", "shorts"),
			UseSSL:    getBool("S3_USE_SSL"),
			PublicURL: strings.TrimRight(getString("S3_PUBLIC_URL", ""), "/"),
		},
		Publish: PublishConfig{
			ClientID:     getString("PUBLISH_CLIENT_ID", ""),
			ClientSecret: getString("PUBLISH_CLIENT_SECRET", ""),
			AuthURL:      getString("PUBLISH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
			TokenURL:     getString("PUBLISH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			APIEndpoint:  getString("PUBLISH_API_ENDPOINT", ""),
			Scopes:       strings.Fields(getString("PUBLISH_SCOPES", "https://www.googleapis.com/auth/youtube.upload")),
		},
	}
	cfg.Publish.RedirectURL = cfg.BaseURL + "/api/publish/callback"

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SceneThreshold, err = getFloat("SCENE_THRESHOLD", 0.3); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	switch cfg.Quality {
	case "low", "medium", "high":
	default:
		return nil, fmt.Errorf("%sQUALITY must be low, medium or high, got %q", prefix, cfg.Quality)
	}
	switch cfg.Storage.Backend {
	case "local":
	case "s3":
		if cfg.Storage.Endpoint == "" {
			return nil, fmt.Errorf("please set %sS3_ENDPOINT", prefix)
		}
	default:
		return nil, fmt.Errorf("%sSTORAGE must be local or s3, got %q", prefix, cfg.Storage.Backend)
	}
	if cfg.Publish.Enabled() && len(cfg.SessionAuthKey) == 0 {
		return nil, fmt.Errorf("please set %sSESSION_AUTH_KEY when publishing is configured", prefix)
	}
	if cfg.Publish.Enabled() && cfg.TokenSecret == "" {
		return nil, fmt.Errorf("please set %sTOKEN_SECRET when publishing is configured", prefix)
	}
	return cfg, nil
}

func GetDataDir() string {
	return getString("DATA_DIR", "data")
}

// defaults to GetDataDir() / config
func GetConfigDir() string {
	value, exists := os.LookupEnv(prefix + "CONFIG_DIR")
	if exists {
		return value
	}
	return filepath.Join(GetDataDir(), "config")
}

func GetSecure() bool {
	return getBool("SECURE")
}

func GetGitSHA() string {
	if gitSHA == "" {
		return "<not provided>"
	} else {
		return gitSHA
	}
}

func GetBuildDate() string {
	if buildDate == "" {
		return "<not provided>"
	} else {
		return buildDate
	}
}

func getString(key, def string) string {
	value, exists := os.LookupEnv(prefix + key)
	if exists {
		return value
	}
	return def
}

func getBool(key string) bool {
	if value, exists := os.LookupEnv(prefix + key); exists {
		lower := strings.ToLower(value)
		if lower == "on" || lower == "1" || lower == "true" || lower == "yes" {
			return true
		}
	}
	return false
}

func getInt(key string, def int) (int, error) {
	value, exists := os.LookupEnv(prefix + key)
	if !exists || value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	value, exists := os.LookupEnv(prefix + key)
	if !exists || value == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(prefix + key)
	if !exists || value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return d, nil
}
