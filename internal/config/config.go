// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/spf13/viper"

	"github.com/hashgraph/solo-stager/internal/plan"
	"github.com/hashgraph/solo-stager/internal/quorum"
	"github.com/hashgraph/solo-stager/internal/schema"
)

// Config holds the global configuration for the application.
type Config struct {
	Log    logx.LoggingConfig `yaml:"log" json:"log"`
	Stages StagesConfig       `yaml:"stages" json:"stages"`
	Quorum QuorumConfig       `yaml:"quorum" json:"quorum"`
}

// StagesConfig represents the `stages` configuration block feeding the stage
// resolver.
type StagesConfig struct {
	// Overrides forces a stage per migration, keyed "app.name". Wins over
	// everything, including a stage declared on the migration itself.
	Overrides map[string]string `yaml:"overrides" json:"overrides"`

	// Fallback substitutes a stage per app label when inference is
	// ambiguous.
	Fallback map[string]string `yaml:"fallback" json:"fallback"`

	// ThirdPartyFallback is the stage substituted on ambiguity for apps not
	// listed in OwnedApps. Empty disables the fallback.
	ThirdPartyFallback string `yaml:"thirdPartyFallback" json:"thirdPartyFallback"`

	// OwnedApps lists the app labels belonging to this project.
	OwnedApps []string `yaml:"ownedApps" json:"ownedApps"`
}

// Validate checks every configured stage value.
func (c *StagesConfig) Validate() error {
	for id, stage := range c.Overrides {
		if !strings.Contains(id, ".") {
			return errorx.IllegalArgument.New("stage override key %q must be of the form app.migration", id)
		}
		if _, err := schema.ParseStage(stage); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid stage override for %s", id)
		}
	}
	for label, stage := range c.Fallback {
		if _, err := schema.ParseStage(stage); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid stage fallback for app %s", label)
		}
	}
	if c.ThirdPartyFallback != "" {
		if _, err := schema.ParseStage(c.ThirdPartyFallback); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid third-party stage fallback")
		}
	}
	return nil
}

// ResolverOptions converts the block into stage resolver options. Validate
// must have passed first.
func (c *StagesConfig) ResolverOptions() []plan.ResolverOption {
	overrides := make(map[plan.MigrationID]schema.Stage, len(c.Overrides))
	for id, stage := range c.Overrides {
		overrides[plan.MigrationID(id)] = schema.Stage(stage)
	}
	fallback := make(map[string]schema.Stage, len(c.Fallback))
	for label, stage := range c.Fallback {
		fallback[label] = schema.Stage(stage)
	}

	return []plan.ResolverOption{
		plan.WithStageOverrides(overrides),
		plan.WithStageFallback(fallback),
		plan.WithThirdPartyFallback(schema.Stage(c.ThirdPartyFallback)),
		plan.WithOwnedApps(c.OwnedApps),
	}
}

// RedisConfig represents the `quorum.redis` connection block.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// QuorumConfig represents the `quorum` configuration block.
type QuorumConfig struct {
	// Backend selects the shared store, "memory" or "redis".
	Backend string      `yaml:"backend" json:"backend"`
	Redis   RedisConfig `yaml:"redis" json:"redis"`

	// Timeout bounds how long a caller waits for the rest of the quorum.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// TTL is how long round state survives in the backend.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// PollInterval and MaxPollInterval bound the wait loop backoff.
	PollInterval    time.Duration `yaml:"pollInterval" json:"pollInterval"`
	MaxPollInterval time.Duration `yaml:"maxPollInterval" json:"maxPollInterval"`
}

// Backend names understood by the quorum block.
const (
	QuorumBackendMemory = "memory"
	QuorumBackendRedis  = "redis"
)

// Validate checks the quorum block.
func (c *QuorumConfig) Validate() error {
	switch c.Backend {
	case QuorumBackendMemory, QuorumBackendRedis:
	default:
		return errorx.IllegalArgument.New(
			"unknown quorum backend %q, expected %q or %q", c.Backend, QuorumBackendMemory, QuorumBackendRedis)
	}
	if c.Backend == QuorumBackendRedis && c.Redis.Addr == "" {
		return errorx.IllegalArgument.New("quorum redis backend requires an address")
	}
	if c.Timeout <= 0 {
		return errorx.IllegalArgument.New("quorum timeout must be positive, got %s", c.Timeout)
	}
	if c.TTL < c.Timeout {
		return errorx.IllegalArgument.New(
			"quorum ttl %s must not be shorter than the timeout %s", c.TTL, c.Timeout)
	}
	return nil
}

// BarrierOptions converts the block into barrier options.
func (c *QuorumConfig) BarrierOptions() []quorum.BarrierOption {
	opts := []quorum.BarrierOption{
		quorum.WithTimeout(c.Timeout),
		quorum.WithTTL(c.TTL),
	}
	if c.PollInterval > 0 && c.MaxPollInterval > 0 {
		opts = append(opts, quorum.WithPollInterval(c.PollInterval, c.MaxPollInterval))
	}
	return opts
}

// Validate validates all configuration fields.
func (c Config) Validate() error {
	if err := c.Stages.Validate(); err != nil {
		return err
	}
	if err := c.Quorum.Validate(); err != nil {
		return err
	}
	return nil
}

var globalConfig = Config{
	Log: logx.LoggingConfig{
		Level:          "Info",
		ConsoleLogging: true,
		FileLogging:    false,
	},
	Stages: StagesConfig{
		ThirdPartyFallback: schema.StagePreDeploy.String(),
	},
	Quorum: QuorumConfig{
		Backend: QuorumBackendMemory,
		Timeout: quorum.DefaultTimeout,
		TTL:     quorum.DefaultTTL,
	},
}

// Initialize loads the configuration from the specified file.
//
// Parameters:
//   - path: The path to the configuration file.
//
// Returns:
//   - An error if the configuration cannot be loaded.
func Initialize(path string) error {
	if path != "" {
		globalConfig = Config{}
		viper.Reset()
		viper.SetConfigFile(path)
		viper.SetEnvPrefix("STAGER")
		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		// Sparse config files inherit the shipped defaults.
		viper.SetDefault("log.level", "Info")
		viper.SetDefault("log.consoleLogging", true)
		viper.SetDefault("stages.thirdPartyFallback", schema.StagePreDeploy.String())
		viper.SetDefault("quorum.backend", QuorumBackendMemory)
		viper.SetDefault("quorum.timeout", quorum.DefaultTimeout)
		viper.SetDefault("quorum.ttl", quorum.DefaultTTL)

		err := viper.ReadInConfig()
		if err != nil {
			return NotFoundError.Wrap(err, "failed to read config file: %s", path).
				WithProperty(errorx.PropertyPayload(), path)
		}

		migrateOldConfigKeys()

		if err := viper.Unmarshal(&globalConfig); err != nil {
			return errorx.IllegalFormat.Wrap(err, "failed to parse configuration").
				WithProperty(errorx.PropertyPayload(), path)
		}
	}

	return nil
}

// Get returns the loaded configuration.
//
// Returns:
//   - The global configuration.
func Get() Config {
	return globalConfig
}

func Set(c *Config) error {
	globalConfig = *c
	return nil
}
