package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the engine reads.
const EnvPrefix = "TRADEWIND"

// Canonical variable names, exported so tests and deploy tooling stay in sync.
const (
	EnvAppEnv        = "TRADEWIND_APP_ENV"
	EnvLogLevel      = "TRADEWIND_LOG_LEVEL"
	EnvOwner         = "TRADEWIND_ENGINE_OWNER"
	EnvEscrowAccount = "TRADEWIND_ENGINE_ESCROW_ACCOUNT"
	EnvMaxSupply     = "TRADEWIND_ENGINE_MAX_SUPPLY"
	EnvFeeBps        = "TRADEWIND_ENGINE_FEE_BPS"
	EnvAssetDecimals = "TRADEWIND_ENGINE_ASSET_DECIMALS"
	EnvDBDSN         = "TRADEWIND_DB_DSN"
	EnvRedisURL      = "TRADEWIND_REDIS_URL"
	EnvStreamChannel = "TRADEWIND_STREAM_CHANNEL"
)

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// maxFeeBps mirrors the marketplace hard cap; rejecting a bad default at boot
// beats failing the first fee update.
const maxFeeBps = 1000

type Config struct {
	App    AppConfig
	Engine EngineConfig
	DB     DBConfig
	Redis  RedisConfig
	Stream StreamConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEWIND_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"TRADEWIND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEWIND_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// EngineConfig seeds the ledger and marketplace singletons.
type EngineConfig struct {
	Owner         string `envconfig:"TRADEWIND_ENGINE_OWNER" required:"true"`
	EscrowAccount string `envconfig:"TRADEWIND_ENGINE_ESCROW_ACCOUNT" default:"marketplace.escrow"`
	MaxSupply     uint64 `envconfig:"TRADEWIND_ENGINE_MAX_SUPPLY" required:"true"`
	FeeBps        uint32 `envconfig:"TRADEWIND_ENGINE_FEE_BPS" default:"250"`
	AssetDecimals int32  `envconfig:"TRADEWIND_ENGINE_ASSET_DECIMALS" default:"8"`
}

func (e EngineConfig) validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return fmt.Errorf("engine owner must not be blank")
	}
	if strings.TrimSpace(e.EscrowAccount) == "" {
		return fmt.Errorf("engine escrow account must not be blank")
	}
	if e.MaxSupply == 0 {
		return fmt.Errorf("engine max supply must be > 0")
	}
	if e.FeeBps > maxFeeBps {
		return fmt.Errorf("engine fee %d bps exceeds cap of %d", e.FeeBps, maxFeeBps)
	}
	if e.AssetDecimals < 0 {
		return fmt.Errorf("asset decimals must be >= 0")
	}
	return nil
}

// DBConfig configures the optional event-archive database. Empty DSN disables
// the archive sink.
type DBConfig struct {
	DSN             string        `envconfig:"TRADEWIND_DB_DSN"`
	MaxOpenConns    int           `envconfig:"TRADEWIND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEWIND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEWIND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEWIND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"TRADEWIND_DB_AUTO_MIGRATE" default:"false"`
}

// Enabled reports whether the archive sink should be wired at all.
func (d DBConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

// RedisConfig configures the optional event-stream publisher. Empty URL
// disables the stream sink.
type RedisConfig struct {
	URL          string        `envconfig:"TRADEWIND_REDIS_URL"`
	PoolSize     int           `envconfig:"TRADEWIND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEWIND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEWIND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEWIND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEWIND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// StreamConfig names the pub/sub channel external indexers subscribe to.
type StreamConfig struct {
	Channel     string        `envconfig:"TRADEWIND_STREAM_CHANNEL" default:"engine.events"`
	MaxAttempts uint64        `envconfig:"TRADEWIND_STREAM_MAX_ATTEMPTS" default:"3"`
	Backoff     time.Duration `envconfig:"TRADEWIND_STREAM_BACKOFF" default:"100ms"`
}
