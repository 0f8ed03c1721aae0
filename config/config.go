// Package config loads application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envFile = ".env"

// NewConfig loads configuration from the environment (and an optional .env
// file) with typed defaults and validation.
func NewConfig() (*Config, error) {
	return load(envFile)
}

func load(path string) (*Config, error) {
	// Load keeps variables that are already set.
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "debug")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.grpc_port", 6969)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "devspace")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("devspace.max_team_size", 4)
	v.SetDefault("devspace.max_outstanding", 3)
	v.SetDefault("devspace.max_retries", 3)

	v.SetDefault("cooldown.search", 20*time.Second)
	v.SetDefault("cooldown.status", 2*time.Minute)
	v.SetDefault("cooldown.profile", 5*time.Minute)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1/")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")

	v.SetDefault("push.inactive_timeout", 30*time.Minute)
	v.SetDefault("push.sweep_interval", 5*time.Minute)

	v.SetDefault("tracing.service_name", "devspace-backend")
}

// aliases maps keys to the legacy environment variable names accepted
// alongside the derived ones (server.port reads SERVER_PORT and PORT).
var aliases = map[string]string{
	"server.port":      "PORT",
	"server.grpc_port": "GRPC_PORT",
	"mongo.uri":        "MONGODB_URI",
	"auth.jwt_key":     "JWT_KEY",
	"rabbitmq.url":     "RABBITMQ_CONNSTRING",
	"llm.api_key":      "OPENAI_API_KEY",
	"s3.region":        "AWS_REGION",
	"s3.bucket":        "S3_BUCKET_NAME",
	"logging.level":    "LOG_LEVEL",
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"server.host",
		"server.port",
		"server.grpc_port",
		"server.shutdown_timeout",
		"server.allowed_origins",
		"mongo.uri",
		"mongo.database",
		"mongo.connect_timeout",
		"devspace.max_team_size",
		"devspace.max_outstanding",
		"devspace.max_retries",
		"cooldown.search",
		"cooldown.status",
		"cooldown.profile",
		"auth.jwt_key",
		"rabbitmq.url",
		"mailgun.domain",
		"mailgun.api_key",
		"mailgun.from",
		"llm.base_url",
		"llm.api_key",
		"llm.embedding_model",
		"llm.chat_model",
		"s3.region",
		"s3.bucket",
		"push.inactive_timeout",
		"push.sweep_interval",
		"tracing.endpoint",
		"tracing.service_name",
	}

	for _, k := range keys {
		env := strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
		if alias, ok := aliases[k]; ok {
			_ = v.BindEnv(k, env, alias)
			continue
		}
		_ = v.BindEnv(k, env)
	}
}
