package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server   server
	Postgres postgres
	Valkey   valkey
	RabbitMQ rabbitMQ
}

type server struct {
	Addr string `env:"SERVER_ADDR" env-default:":3000"`
}

type postgres struct {
	URL      string `env:"POSTGRES_URL" env-required:"true"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type valkey struct {
	Addr     string `env:"VALKEY_ADDR" env-required:"true"`
	Password string `env:"VALKEY_PASSWORD" env-default:""`
	DB       int    `env:"VALKEY_DB" env-default:"0"`
}

type rabbitMQ struct {
	URL   string `env:"RABBITMQ_URL" env-required:"true"`
	Queue string `env:"RABBITMQ_QUEUE" env-default:"qr-service-queue"`
}

func NewConfig() (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	return &cfg, nil
}
