package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Devspace DevspaceConfig `mapstructure:"devspace"`
	Cooldown CooldownConfig `mapstructure:"cooldown"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Rabbit   RabbitConfig   `mapstructure:"rabbitmq"`
	Mailgun  MailgunConfig  `mapstructure:"mailgun"`
	LLM      LLMConfig      `mapstructure:"llm"`
	S3       S3Config       `mapstructure:"s3"`
	Push     PushConfig     `mapstructure:"push"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

func (c Config) Validate() error {
	if c.Server.Port == 0 {
		return errors.New("server.port is required")
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return errors.New("mongo.uri and mongo.database are required")
	}
	if c.Devspace.MaxTeamSize < 2 {
		return fmt.Errorf("devspace.max_team_size must be at least 2, got %d", c.Devspace.MaxTeamSize)
	}
	if c.Devspace.MaxOutstanding < 1 {
		return fmt.Errorf("devspace.max_outstanding must be at least 1, got %d", c.Devspace.MaxOutstanding)
	}
	return nil
}

func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type DevspaceConfig struct {
	MaxTeamSize    int `mapstructure:"max_team_size"`
	MaxOutstanding int `mapstructure:"max_outstanding"`
	MaxRetries     int `mapstructure:"max_retries"`
}

type CooldownConfig struct {
	Search  time.Duration `mapstructure:"search"`
	Status  time.Duration `mapstructure:"status"`
	Profile time.Duration `mapstructure:"profile"`
}

// AuthConfig holds the shared key used to verify identity provider tokens.
// An empty key disables verification.
type AuthConfig struct {
	JWTKey string `mapstructure:"jwt_key"`
}

type RabbitConfig struct {
	URL string `mapstructure:"url"`
}

type MailgunConfig struct {
	Domain string `mapstructure:"domain"`
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	ChatModel      string `mapstructure:"chat_model"`
}

type S3Config struct {
	Region string `mapstructure:"region"`
	Bucket string `mapstructure:"bucket"`
}

type PushConfig struct {
	InactiveTimeout time.Duration `mapstructure:"inactive_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}
