// Package config предоставляет структуры и функции для загрузки конфигурации сервиса
// из YAML-файла с переопределением секретов через переменные окружения.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Допустимые значения Env.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	Telegram        `yaml:"telegram"`
	RabbitMQ        `yaml:"rabbitmq"`
	Analysis        `yaml:"analysis"`
	Upload          `yaml:"upload"`
	Worker          `yaml:"worker"`
	RateLimit       `yaml:"rate_limit"`
}

// Storage настройки хранилища. Driver: postgres или memory.
type Storage struct {
	Driver                  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой AddressRedis отключает кеш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env-default:"1h"`
}

// JWTToken структура для работы с jwt-токеном сессии.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"168h"`
}

// Telegram настройки проверки initData из Telegram WebApp.
type Telegram struct {
	BotToken        string        `yaml:"bot_token" env:"BOT_TOKEN"`
	DomainSeparator string        `yaml:"domain_separator" env-default:"WebAppBotToken"`
	MaxAuthAge      time.Duration `yaml:"max_auth_age"`
}

// RabbitMQ настройки подключения к брокеру.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Prefetch           int           `yaml:"prefetch" env-default:"10"`
}

// Analysis настройки выполнения задач анализа.
// Transport: rabbitmq (задачи уходят в очередь для scan-worker) или local (пул в процессе API).
type Analysis struct {
	Transport   string        `yaml:"transport" env:"ANALYSIS_TRANSPORT" env-default:"local"`
	Workers     int           `yaml:"workers" env-default:"4"`
	QueueSize   int           `yaml:"queue_size" env-default:"64"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
	StubDelay   time.Duration `yaml:"stub_delay"`
	HistorySize int           `yaml:"history_text_limit" env-default:"500"`
}

// Upload настройки приёма изображений.
type Upload struct {
	Dir         string `yaml:"dir" env-default:"uploads/images"`
	MaxFileSize int64  `yaml:"max_file_size" env-default:"10485760"`
}

// Worker настройки отдельного процесса анализа.
type Worker struct {
	GRPCAddress    string        `yaml:"grpc_address" env-default:":50051"`
	MetricsAddress string        `yaml:"metrics_address" env-default:":9091"`
	HealthInterval time.Duration `yaml:"health_interval" env-default:"10s"`
}

// RateLimit настройки ограничения частоты запросов на одного клиента.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// Load читает конфиг по указанному пути и проверяет обязательные поля.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг из флага -config или переменной CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func fetchConfigPath() string {
	var res string
	if !flag.Parsed() {
		flag.StringVar(&res, "config", "", "path to config file")
		flag.Parse()
	}
	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	switch c.Driver {
	case "postgres":
		if c.StorageConnectionString == "" {
			return errors.New("storage_connection_string is required for postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	switch c.Transport {
	case "local":
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return errors.New("rabbitmq url is required for rabbitmq transport")
		}
	default:
		return fmt.Errorf("unknown analysis transport %q", c.Transport)
	}
	if c.JWTSecretKey == "" {
		return errors.New("jwt_secret_key is required")
	}
	if c.BotToken == "" {
		return errors.New("telegram bot_token is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	return nil
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"Analysis:\n"+
			"  Transport: %s\n"+
			"  Workers: %d\n"+
			"  Timeout: %s\n",
		c.Env,
		c.Driver,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.Transport,
		c.Workers,
		c.Analysis.Timeout,
	)
}
