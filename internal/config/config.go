package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel       string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort       string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort     string   `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	AllowedOrigins []string `yaml:"allowed-origins" env:"ALLOWED_ORIGINS" env-separator:","`
	Redis          Redis    `yaml:"redis"`
	Postgres       Postgres `yaml:"postgres"`
	NATS           NATS     `yaml:"nats"`
	Game           Game     `yaml:"game"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Postgres holds the round ledger connection; an empty DSN disables history.
type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN" env-default:""`
}

// NATS holds the round event bus; an empty URL disables publishing.
type NATS struct {
	URL     string `yaml:"url" env:"NATS_URL" env-default:""`
	Subject string `yaml:"subject" env:"NATS_SUBJECT" env-default:"ekkibekki.round.resolved"`
}

type Game struct {
	Countdown       int           `yaml:"countdown" env:"GAME_COUNTDOWN" env-default:"10"`
	ResetDelay      time.Duration `yaml:"reset-delay" env:"GAME_RESET_DELAY" env-default:"1s"`
	StartingBalance int           `yaml:"starting-balance" env:"GAME_STARTING_BALANCE" env-default:"100"`
	BetOptions      []int         `yaml:"bet-options" env:"GAME_BET_OPTIONS" env-separator:"," env-default:"10,20,30,40,50,100"`
	IdleTimeout     time.Duration `yaml:"idle-timeout" env:"GAME_IDLE_TIMEOUT" env-default:"30m"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
