package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string
	DBPath     string
	PhotoPath  string

	VisionBackend   string
	ClaudeAPIKey    string
	ClaudeModel     string
	GeminiAPIKey    string
	GeminiModel     string
	OllamaHost      string
	OllamaModel     string
	VisionRateLimit float64

	JWTSecret         string
	SessionTTL        time.Duration
	SessionFile       string
	FederatedIssuer   string
	FederatedAudience string
	FederatedSecret   string
	ResetTokenTTL     time.Duration

	NotifyURLs    []string
	NotifyTimeout time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "/data/bloom.db")
	v.SetDefault("photo_local_path", "/data/photos")
	v.SetDefault("vision_backend", "claude")
	v.SetDefault("claude_model", "claude-sonnet-4-5")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("ollama_model", "llava")
	v.SetDefault("vision_rate_limit", 0)
	v.SetDefault("auth_session_ttl", "720h")
	v.SetDefault("auth_session_file", "/data/bloom.session")
	v.SetDefault("reset_token_ttl", "1h")
	v.SetDefault("notify_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
}

// Load reads configuration from a .env file, an optional YAML file and the
// environment, in increasing order of precedence. configFile may be empty,
// in which case ./bloom.yaml is used when present.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("bloom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{
		ListenAddr:        v.GetString("listen_addr"),
		DBPath:            v.GetString("db_path"),
		PhotoPath:         v.GetString("photo_local_path"),
		VisionBackend:     strings.ToLower(v.GetString("vision_backend")),
		ClaudeAPIKey:      v.GetString("claude_api_key"),
		ClaudeModel:       v.GetString("claude_model"),
		GeminiAPIKey:      v.GetString("gemini_api_key"),
		GeminiModel:       v.GetString("gemini_model"),
		OllamaHost:        v.GetString("ollama_host"),
		OllamaModel:       v.GetString("ollama_model"),
		VisionRateLimit:   v.GetFloat64("vision_rate_limit"),
		JWTSecret:         v.GetString("auth_jwt_secret"),
		SessionTTL:        v.GetDuration("auth_session_ttl"),
		SessionFile:       v.GetString("auth_session_file"),
		FederatedIssuer:   v.GetString("auth_federated_issuer"),
		FederatedAudience: v.GetString("auth_federated_audience"),
		FederatedSecret:   v.GetString("auth_federated_secret"),
		ResetTokenTTL:     v.GetDuration("reset_token_ttl"),
		NotifyURLs:        splitList(v.GetString("notify_urls")),
		NotifyTimeout:     v.GetDuration("notify_timeout"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		LogFile:           v.GetString("log_file"),
	}, nil
}

// Validate reports settings that are missing for the selected backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.VisionBackend {
	case "claude":
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when VISION_BACKEND=claude"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when VISION_BACKEND=gemini"))
		}
	case "ollama":
		if c.OllamaHost == "" {
			errs = append(errs, errors.New("OLLAMA_HOST is required when VISION_BACKEND=ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VISION_BACKEND %q", c.VisionBackend))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.FederatedEnabled() && (c.FederatedAudience == "" || c.FederatedSecret == "") {
		errs = append(errs, errors.New("AUTH_FEDERATED_AUDIENCE and AUTH_FEDERATED_SECRET are required with AUTH_FEDERATED_ISSUER"))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c *Config) FederatedEnabled() bool {
	return c.FederatedIssuer != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
