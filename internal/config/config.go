package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sesmanagement/discussions/internal/logger"
)

var log = logger.New("config")

// MediaConfig holds the upload credential set for the media host
type MediaConfig struct {
	BaseURL      string `yaml:"base_url"`
	CloudName    string `yaml:"cloud_name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	UploadPreset string `yaml:"upload_preset"`
}

// Enabled reports whether attachments can be uploaded at all
func (m MediaConfig) Enabled() bool {
	return m.CloudName != "" && m.APIKey != "" && m.APISecret != ""
}

// ServerConfig configures the local reference backend
type ServerConfig struct {
	Port           string   `yaml:"port"`
	JWTSecret      string   `yaml:"jwt_secret"`
	DatabaseURL    string   `yaml:"database_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is everything the chat client and the reference backend read at startup
type Config struct {
	Env        string       `yaml:"env"`
	LogLevel   string       `yaml:"log_level"`
	APIBaseURL string       `yaml:"api_base_url"`
	SocketURL  string       `yaml:"socket_url"`
	AuthToken  string       `yaml:"auth_token"`
	Media      MediaConfig  `yaml:"media"`
	Server     ServerConfig `yaml:"server"`
}

// Default returns the values the console uses against a backend on localhost
func Default() *Config {
	return &Config{
		Env:        "development",
		LogLevel:   "info",
		APIBaseURL: "http://localhost:3000",
		SocketURL:  "ws://localhost:3000/socket",
		Media: MediaConfig{
			BaseURL: "https://api.cloudinary.com",
		},
		Server: ServerConfig{
			Port:           "3000",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// Load reads .env, the optional YAML file named by CHAT_CONFIG, then the environment
func Load() (*Config, error) {
	return LoadFrom(".env", os.Getenv("CHAT_CONFIG"))
}

// LoadFrom is Load with explicit file locations; empty names are skipped.
// Precedence, lowest first: defaults, YAML file, environment (including .env).
func LoadFrom(envFile, yamlFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Debug("%s not loaded, using environment variables: %v", envFile, err)
		}
	}

	cfg := Default()
	if yamlFile != "" {
		data, err := os.ReadFile(yamlFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", yamlFile, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if lvl, ok := logger.ParseLevel(cfg.LogLevel); ok {
		logger.SetMinLevel(lvl)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.Env, "ENV")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.APIBaseURL, "API_BASE_URL")
	set(&c.SocketURL, "SOCKET_URL")
	set(&c.AuthToken, "AUTH_TOKEN")

	set(&c.Media.BaseURL, "CLOUDINARY_BASE_URL")
	set(&c.Media.CloudName, "CLOUDINARY_CLOUD_NAME")
	set(&c.Media.APIKey, "CLOUDINARY_API_KEY")
	set(&c.Media.APISecret, "CLOUDINARY_API_SECRET")
	set(&c.Media.UploadPreset, "CLOUDINARY_UPLOAD_PRESET")

	set(&c.Server.Port, "PORT")
	set(&c.Server.JWTSecret, "JWT_SECRET")
	set(&c.Server.DatabaseURL, "DATABASE_URL")
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
}

// ValidateClient checks what the chat client cannot start without
func (c *Config) ValidateClient() error {
	if c.APIBaseURL == "" || c.SocketURL == "" {
		return fmt.Errorf("API_BASE_URL and SOCKET_URL are required")
	}
	if strings.TrimSpace(c.AuthToken) == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	return nil
}

// ValidateServer checks what the reference backend cannot start without
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}

// IsProduction mirrors the ENV switch used for gin's release mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
