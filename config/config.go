// Package config loads agora settings from defaults, an optional YAML, JSON
// or TOML file and AGORA_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/engine"
	"github.com/hupe1980/agora/moderator"
	"github.com/hupe1980/agora/pool"
	"github.com/hupe1980/agora/scheduler"
)

// EnvPrefix is prepended to every environment override, e.g.
// AGORA_POOL_CAPACITY or AGORA_MODEL_PROVIDER.
const EnvPrefix = "AGORA"

// Supported model providers. The static provider runs without a model and
// answers from templates.
const (
	ProviderStatic    = "static"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete agora configuration.
type Config struct {
	Engine       engine.Config      `mapstructure:"engine"`
	Pool         PoolConfig         `mapstructure:"pool"`
	Moderator    moderator.Config   `mapstructure:"moderator"`
	Protocol     core.Protocol      `mapstructure:"protocol"`
	Invoker      InvokerConfig      `mapstructure:"invoker"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Model        ModelConfig        `mapstructure:"model"`
	Delegates    []DelegateConfig   `mapstructure:"delegates"`
	Participants ParticipantsConfig `mapstructure:"participants"`
	Server       ServerConfig       `mapstructure:"server"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// PoolConfig bounds the live session set.
type PoolConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ModelCallBudget int           `mapstructure:"model_call_budget"`
}

// InvokerConfig tunes the completion tier and the result cache.
type InvokerConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// SchedulerConfig tunes bidding.
type SchedulerConfig struct {
	// ModelBids asks the model for bids before falling back to the heuristic.
	ModelBids bool          `mapstructure:"model_bids"`
	BidTTL    time.Duration `mapstructure:"bid_ttl"`
}

// ModelConfig selects the completion provider.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Name     string `mapstructure:"name"`
	// APIKey is usually left empty so the provider SDK reads its own
	// environment variable.
	APIKey string `mapstructure:"api_key"`
}

// DelegateConfig registers a remote MCP delegate tool.
type DelegateConfig struct {
	Name     string   `mapstructure:"name"`
	Endpoint string   `mapstructure:"endpoint"`
	Command  []string `mapstructure:"command"`
	Tool     string   `mapstructure:"tool"`
}

// ParticipantsConfig locates participant profile files. An empty glob uses
// the built in panel.
type ParticipantsConfig struct {
	Glob string `mapstructure:"glob"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LedgerConfig enables the JSON lines ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig selects level and output format: "console" (zerolog pretty),
// "json" (zerolog) or "text" (slog key=value).
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built in configuration.
func Default() *Config {
	return &Config{
		Engine: engine.DefaultConfig,
		Pool: PoolConfig{
			Capacity:    pool.DefaultCapacity,
			IdleTimeout: pool.DefaultIdleTimeout,
		},
		Moderator: moderator.DefaultConfig(),
		Protocol:  core.DefaultProtocol,
		Invoker: InvokerConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     4 * time.Second,
			MaxTokens:       400,
			CacheTTL:        30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			BidTTL: scheduler.DefaultBidTTL,
		},
		Model: ModelConfig{
			Provider: ProviderStatic,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers every default on v so environment overrides apply
// to keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine.max_concurrent_invocations", d.Engine.MaxConcurrentInvocations)
	v.SetDefault("engine.tick_interval", d.Engine.TickInterval)
	v.SetDefault("engine.quality_interval", d.Engine.QualityInterval)
	v.SetDefault("engine.digest_top_n", d.Engine.DigestTopN)
	v.SetDefault("engine.digest_budget", d.Engine.DigestBudget)

	v.SetDefault("pool.capacity", d.Pool.Capacity)
	v.SetDefault("pool.idle_timeout", d.Pool.IdleTimeout)
	v.SetDefault("pool.model_call_budget", d.Pool.ModelCallBudget)

	v.SetDefault("moderator.stall_threshold", d.Moderator.StallThreshold)
	v.SetDefault("moderator.turn_interval", d.Moderator.TurnInterval)
	v.SetDefault("moderator.dominance_factor", d.Moderator.DominanceFactor)
	v.SetDefault("moderator.circularity_min_statements", d.Moderator.CircularityMinStatements)
	v.SetDefault("moderator.circularity_max_consensus", d.Moderator.CircularityMaxConsensus)
	v.SetDefault("moderator.initialization_max_turns", d.Moderator.InitializationMaxTurns)
	v.SetDefault("moderator.moderator_window", d.Moderator.ModeratorWindow)

	v.SetDefault("protocol.turn_duration_seconds", d.Protocol.TurnDurationSeconds)
	v.SetDefault("protocol.max_turns", d.Protocol.MaxTurns)
	v.SetDefault("protocol.consensus_threshold_percent", d.Protocol.ConsensusThresholdPercent)
	v.SetDefault("protocol.intervention_style", string(d.Protocol.InterventionStyle))

	v.SetDefault("invoker.max_attempts", d.Invoker.MaxAttempts)
	v.SetDefault("invoker.initial_interval", d.Invoker.InitialInterval)
	v.SetDefault("invoker.max_interval", d.Invoker.MaxInterval)
	v.SetDefault("invoker.max_tokens", d.Invoker.MaxTokens)
	v.SetDefault("invoker.cache_ttl", d.Invoker.CacheTTL)

	v.SetDefault("scheduler.model_bids", d.Scheduler.ModelBids)
	v.SetDefault("scheduler.bid_ttl", d.Scheduler.BidTTL)

	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.api_key", d.Model.APIKey)

	v.SetDefault("participants.glob", d.Participants.Glob)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("ledger.path", d.Ledger.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads the configuration. path may be empty to use defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be positive, got %d", c.Pool.Capacity))
	}
	if c.Pool.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pool.idle_timeout must be positive, got %s", c.Pool.IdleTimeout))
	}
	if c.Engine.MaxConcurrentInvocations <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrent_invocations must be positive, got %d", c.Engine.MaxConcurrentInvocations))
	}
	if c.Invoker.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("invoker.max_attempts must be positive, got %d", c.Invoker.MaxAttempts))
	}
	if p := c.Protocol.ConsensusThresholdPercent; p < 0 || p > 100 {
		errs = append(errs, fmt.Errorf("protocol.consensus_threshold_percent must be within 0..100, got %d", p))
	}
	switch c.Protocol.InterventionStyle {
	case "", core.InterventionActive, core.InterventionPassive:
	default:
		errs = append(errs, fmt.Errorf("protocol.intervention_style must be active or passive, got %q", c.Protocol.InterventionStyle))
	}
	if c.Moderator.DominanceFactor <= 1 {
		errs = append(errs, fmt.Errorf("moderator.dominance_factor must exceed 1, got %g", c.Moderator.DominanceFactor))
	}
	switch c.Model.Provider {
	case ProviderStatic, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider must be one of static, openai, anthropic, got %q", c.Model.Provider))
	}
	for i, d := range c.Delegates {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("delegates[%d].name is required", i))
		}
		if d.Endpoint == "" && len(d.Command) == 0 {
			errs = append(errs, fmt.Errorf("delegates[%d] needs an endpoint or a command", i))
		}
	}
	switch c.Logging.Format {
	case "console", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console, json or text, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
