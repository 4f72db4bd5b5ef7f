package bankledger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Database struct {
		Driver           string `yaml:"driver"`
		ConnectionString string `yaml:"conn_str"`
		MaxConns         int32  `yaml:"max_conns"`
		Migrate          bool   `yaml:"migrate"`
	} `yaml:"database"`
	Snowflake struct {
		Node int64 `yaml:"node"`
	} `yaml:"snowflake"`
	Limits struct {
		InFlight       int64         `yaml:"in_flight"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"limits"`
	Breaker struct {
		MaxRequests         uint32        `yaml:"max_requests"`
		Interval            time.Duration `yaml:"interval"`
		Timeout             time.Duration `yaml:"timeout"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	} `yaml:"breaker"`
	Seed struct {
		Accounts []SeedAccount `yaml:"accounts"`
	} `yaml:"seed"`
}

type SeedAccount struct {
	Number   string `yaml:"number"`
	Password string `yaml:"password"`
	Balance  int64  `yaml:"balance"`
	OwnerID  int64  `yaml:"owner_id"`
}

// LoadConfig decodes YAML from r, fills defaults and validates the result.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = zerolog.InfoLevel.String()
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Snowflake.Node == 0 {
		c.Snowflake.Node = 1
	}
	if c.Limits.InFlight == 0 {
		c.Limits.InFlight = 64
	}
	if c.Limits.AcquireTimeout == 0 {
		c.Limits.AcquireTimeout = 2 * time.Second
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
}

func (c *Config) Validate() error {
	fields := map[string]string{}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.ConnectionString == "" {
			fields["database.conn_str"] = "required for postgres driver"
		}
	case DriverMemory:
	default:
		fields["database.driver"] = "must be postgres or memory"
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fields["log.level"] = err.Error()
	}
	if c.Snowflake.Node < 0 || c.Snowflake.Node > 1023 {
		fields["snowflake.node"] = "must be within 0..1023"
	}
	if c.Limits.InFlight < 0 {
		fields["limits.in_flight"] = "must not be negative"
	}
	if len(fields) > 0 {
		return ErrBadRequest{Fields: fields}
	}
	return nil
}

func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// BreakerSettings trips a breaker after the configured number of consecutive
// unavailable errors.
func (c *Config) BreakerSettings(log *zerolog.Logger) gobreaker.Settings {
	threshold := c.Breaker.ConsecutiveFailures
	return gobreaker.Settings{
		MaxRequests: c.Breaker.MaxRequests,
		Interval:    c.Breaker.Interval,
		Timeout:     c.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
}
