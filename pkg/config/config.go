package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Screener struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		CombinedLimit int           `yaml:"combined_limit"`
		SingleLimit   int           `yaml:"single_limit"`
		Period        string        `yaml:"period"`
		Interval      string        `yaml:"interval"`
		LocalRecheck  bool          `yaml:"local_recheck"`
	} `yaml:"screener"`

	Database struct {
		Driver       string `yaml:"driver"`
		DSN          string `yaml:"dsn"`
		SeedDemoUser bool   `yaml:"seed_demo_user"`
	} `yaml:"database"`

	NATS struct {
		URL     string `yaml:"url"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"nats"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"api"`

	Monitor struct {
		Schedule string `yaml:"schedule"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"monitor"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"smtp"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default configuration used when no file is present
func Default() *Config {
	var c Config
	c.App.Name = "screenradar"
	c.App.Env = "dev"
	c.Screener.BaseURL = "http://localhost:5000/api/v1"
	c.Screener.Timeout = 30 * time.Second
	c.Screener.CombinedLimit = 600
	c.Screener.SingleLimit = 100
	c.Screener.Period = "1y"
	c.Screener.Interval = "1d"
	c.Database.Driver = "sqlite"
	c.Database.DSN = "screenradar.db"
	c.Database.SeedDemoUser = true
	c.NATS.URL = "nats://127.0.0.1:4222"
	c.API.Port = "8080"
	c.API.ReadTimeout = 15 * time.Second
	c.API.WriteTimeout = 60 * time.Second
	c.Monitor.Schedule = "@every 5m"
	c.Monitor.Enabled = true
	c.SMTP.Port = 587
	c.Log.Level = "info"
	return &c
}

// LoadConfig reads the YAML file at path on top of the defaults, then loads
// .env and applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := overrideFromEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// overrideFromEnv applies environment variables over the file values
func overrideFromEnv(config *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_NAME", &config.App.Name)
	str("APP_ENV", &config.App.Env)

	str("SCREENER_BASE_URL", &config.Screener.BaseURL)
	duration("SCREENER_TIMEOUT", &config.Screener.Timeout)
	boolean("SCREENER_LOCAL_RECHECK", &config.Screener.LocalRecheck)

	str("DB_DRIVER", &config.Database.Driver)
	str("DB_DSN", &config.Database.DSN)
	boolean("DB_SEED_DEMO_USER", &config.Database.SeedDemoUser)

	str("NATS_URL", &config.NATS.URL)
	boolean("NATS_ENABLED", &config.NATS.Enabled)

	str("API_PORT", &config.API.Port)

	str("MONITOR_SCHEDULE", &config.Monitor.Schedule)
	boolean("MONITOR_ENABLED", &config.Monitor.Enabled)

	str("SMTP_HOST", &config.SMTP.Host)
	integer("SMTP_PORT", &config.SMTP.Port)
	str("SMTP_USERNAME", &config.SMTP.Username)
	str("SMTP_PASSWORD", &config.SMTP.Password)
	str("SMTP_FROM", &config.SMTP.From)
	boolean("SMTP_ENABLED", &config.SMTP.Enabled)

	str("LOG_LEVEL", &config.Log.Level)
	boolean("LOG_PRETTY", &config.Log.Pretty)

	config.Database.Driver = strings.ToLower(config.Database.Driver)
	return errors.Join(errs...)
}

// GetDefaultConfigPath CONFIG_PATH, else configs/<APP_ENV>/app.yaml
func GetDefaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("configs/%s/app.yaml", env)
}
