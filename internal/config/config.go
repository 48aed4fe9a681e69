package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownSeconds int    `yaml:"shutdown_seconds"`
	} `yaml:"server"`
	DB struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"db"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Idram struct {
		FormURL    string `yaml:"form_url"`
		RecAccount string `yaml:"rec_account"`
		SecretKey  string `yaml:"secret_key"`
		Language   string `yaml:"language"`
	} `yaml:"idram"`
	Logger LoggerConfig `yaml:"logger"`
}

type LoggerConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableColors bool   `yaml:"enable_colors"`
	FilePath     string `yaml:"file_path"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     bool   `yaml:"compress"`
}

// Load reads .env (if any), then the YAML file, then applies env overrides.
// A missing YAML file is fine when the environment supplies the required keys.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return errors.New("auth.token_ttl_hours must be positive")
	}
	return nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownSeconds = 5
	cfg.Auth.TokenTTLHours = 72
	cfg.Logger = LoggerConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		cfg.DB.MaxConns = int32(atoiOr(int(cfg.DB.MaxConns), v))
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL_HOURS"); v != "" {
		cfg.Auth.TokenTTLHours = atoiOr(cfg.Auth.TokenTTLHours, v)
	}
	if v := os.Getenv("IDRAM_FORM_URL"); v != "" {
		cfg.Idram.FormURL = v
	}
	if v := os.Getenv("IDRAM_REC_ACCOUNT"); v != "" {
		cfg.Idram.RecAccount = v
	}
	if v := os.Getenv("IDRAM_SECRET_KEY"); v != "" {
		cfg.Idram.SecretKey = v
	}
	if v := os.Getenv("IDRAM_LANGUAGE"); v != "" {
		cfg.Idram.Language = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("LOG_FILE_PATH"); v != "" {
		cfg.Logger.FilePath = v
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
