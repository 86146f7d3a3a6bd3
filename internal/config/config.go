package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/registry"
)

type Config struct {
	Port                 string            `env:"FAIRTICKET_PORT"                    envDefault:"8080"`
	PostgresDSN          string            `env:"FAIRTICKET_POSTGRES_DSN"`
	QueueMaxSize         int               `env:"FAIRTICKET_QUEUE_MAX_SIZE"          envDefault:"10000"`
	BatchMaxSize         int               `env:"FAIRTICKET_BATCH_MAX_SIZE"          envDefault:"500"`
	BatchMaxWait         time.Duration     `env:"FAIRTICKET_BATCH_MAX_WAIT"          envDefault:"50ms"`
	MaxBodyBytes         int64             `env:"FAIRTICKET_MAX_BODY_BYTES"          envDefault:"1048576"`
	RateLimitStatsPerMin int               `env:"FAIRTICKET_RATE_LIMIT_STATS_PER_MIN" envDefault:"20"`
	APIKeys              map[string]string `env:"FAIRTICKET_API_KEYS"          envSeparator:"," envKeyValSeparator:"="`
	SequencerQueue       int               `env:"FAIRTICKET_SEQUENCER_QUEUE"         envDefault:"1024"`
	IdempotencyTTL       time.Duration     `env:"FAIRTICKET_IDEMPOTENCY_TTL"         envDefault:"10m"`
	IdempotencyMax       int               `env:"FAIRTICKET_IDEMPOTENCY_MAX"         envDefault:"10000"`
	LogLevel             string            `env:"FAIRTICKET_LOG_LEVEL"               envDefault:"info"`
	LogFormat            string            `env:"FAIRTICKET_LOG_FORMAT"              envDefault:"json"`
	PolicyFile           string            `env:"FAIRTICKET_POLICY_FILE"`
	RegistryAddress      string            `env:"FAIRTICKET_REGISTRY_ADDRESS"        envDefault:"fairticket-registry"`
	RegistryOwner        string            `env:"FAIRTICKET_REGISTRY_OWNER"`
	OTelEndpoint         string            `env:"FAIRTICKET_OTEL_ENDPOINT"`
	ServiceName          string            `env:"FAIRTICKET_SERVICE_NAME"            envDefault:"fairticket"`
}

// Parse loads configuration from environment variables.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers flags that override the environment values already in c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "Postgres DSN for the activity store (empty disables persistence)")
	fs.StringVar(&c.PolicyFile, "policy-file", c.PolicyFile, "YAML file with the initial registry owner and policy")
	fs.StringVar(&c.RegistryOwner, "registry-owner", c.RegistryOwner, "address allowed to change registry policy")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json, text)")
	fs.StringToStringVar(&c.APIKeys, "api-key", c.APIKeys, "key=address pairs binding an X-API-Key value to the principal it acts as (none disables auth)")
	fs.DurationVar(&c.BatchMaxWait, "batch-max-wait", c.BatchMaxWait, "maximum time an activity record waits before flush")
	fs.IntVar(&c.BatchMaxSize, "batch-max-size", c.BatchMaxSize, "activity records per storage batch")
}

// APIKeyPrincipals maps each API key to the address it authenticates.
// Entries with an empty key or address are dropped.
func (c Config) APIKeyPrincipals() map[string]domain.Address {
	m := make(map[string]domain.Address, len(c.APIKeys))
	for k, addr := range c.APIKeys {
		k = strings.TrimSpace(k)
		principal := domain.NormalizeAddress(addr)
		if k != "" && !principal.IsZero() {
			m[k] = principal
		}
	}
	return m
}

func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h).With("service", c.ServiceName)
}

// PolicyFile is the on-disk registry bootstrap document.
type PolicyFile struct {
	Owner           string            `yaml:"owner"`
	RegistryAddress string            `yaml:"registry_address"`
	Policy          registry.Policy   `yaml:"policy"`
	Deposits        map[string]string `yaml:"deposits"`
}

// LoadPolicyFile reads path on top of the default policy, so the file only
// needs the fields it changes.
func LoadPolicyFile(path string) (PolicyFile, error) {
	pf := PolicyFile{Policy: registry.DefaultPolicy()}
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return PolicyFile{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := pf.Policy.Validate(); err != nil {
		return PolicyFile{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pf, nil
}
