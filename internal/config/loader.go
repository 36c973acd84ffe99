package config

import (
	"fmt"
	"time"

	"github.com/dataspect/dataspect/internal/db"
	"github.com/dataspect/dataspect/internal/llm"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP layer settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	MigrationsPath string
	DatasetTimeout time.Duration
}

func newViper(configPath, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()          // allow environment overrides
	v.SetEnvPrefix(envPrefix) // map env vars like DB_HOST, LLM_API_KEY

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	}
	return v
}

func LoadDBConfig(configPath string) (db.Config, error) {
	// Start with default
	cfg := db.DefaultConfig()

	v := newViper(configPath, "DB")

	// Optional: Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}

func LoadLLMConfig(configPath string) (llm.Config, error) {
	cfg := llm.Config{}

	v := newViper(configPath, "LLM")

	v.BindEnv("llm.api_key")
	v.BindEnv("llm.model")
	v.BindEnv("llm.endpoint")
	v.BindEnv("llm.max_tokens")
	v.BindEnv("llm.timeout")

	if v.IsSet("llm.api_key") {
		cfg.APIKey = v.GetString("llm.api_key")
	}
	if v.IsSet("llm.model") {
		cfg.Model = v.GetString("llm.model")
	}
	if v.IsSet("llm.endpoint") {
		cfg.Endpoint = v.GetString("llm.endpoint")
	}
	if v.IsSet("llm.max_tokens") {
		cfg.MaxTokens = v.GetInt("llm.max_tokens")
	}
	if v.IsSet("llm.timeout") {
		cfg.Timeout = v.GetDuration("llm.timeout")
	}

	return cfg, nil
}

func LoadServerConfig(configPath string) (ServerConfig, error) {
	cfg := ServerConfig{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		MigrationsPath: "./migrations",
		DatasetTimeout: 30 * time.Second,
	}

	v := newViper(configPath, "SERVER")

	v.BindEnv("server.addr")
	v.BindEnv("server.allowed_origins")
	v.BindEnv("server.migrations_path")
	v.BindEnv("server.dataset_timeout")

	if v.IsSet("server.addr") {
		cfg.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.migrations_path") {
		cfg.MigrationsPath = v.GetString("server.migrations_path")
	}
	if v.IsSet("server.dataset_timeout") {
		cfg.DatasetTimeout = v.GetDuration("server.dataset_timeout")
	}

	return cfg, nil
}
