// Package config loads the miner's persisted configuration. The mining core
// never reads this; it receives resolved values as plain inputs.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Version is the current config schema version.
const Version = 1

// Config is the persisted miner configuration.
type Config struct {
	Version int `mapstructure:"version"`

	RPCURL  string `mapstructure:"rpc_url"`
	RPCUser string `mapstructure:"rpc_user"`
	RPCPass string `mapstructure:"rpc_pass"`

	RewardAddress string `mapstructure:"reward_address"`
	Network       string `mapstructure:"network"`

	Workers            int `mapstructure:"workers"`
	MaxExtraNonceRolls int `mapstructure:"max_extranonce_rolls"`

	// TargetDifficultyOverride, when nonzero, replaces the template's
	// difficulty for hash acceptance. Useful for dry runs; found "blocks"
	// below network difficulty will be rejected on submission.
	TargetDifficultyOverride float64 `mapstructure:"target_difficulty_override"`

	JournalPath string `mapstructure:"journal_path"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", Version)
	v.SetDefault("rpc_url", "http://127.0.0.1:8332")
	v.SetDefault("rpc_user", "")
	v.SetDefault("rpc_pass", "")
	v.SetDefault("reward_address", "")
	v.SetDefault("network", "mainnet")
	v.SetDefault("workers", 0) // 0 = all CPUs
	v.SetDefault("max_extranonce_rolls", 4)
	v.SetDefault("target_difficulty_override", 0.0)
	v.SetDefault("journal_path", "solominer.db")
	v.SetDefault("metrics_addr", "127.0.0.1:9333")
}

// Load reads the config file at path, creating it with defaults when it does
// not exist yet so a first run leaves an editable template behind.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the miner cannot run without.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if c.RewardAddress == "" {
		return errors.New("reward_address is required")
	}
	switch c.Network {
	case "mainnet", "testnet", "regtest":
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}
	if c.TargetDifficultyOverride < 0 {
		return errors.New("target_difficulty_override must not be negative")
	}
	return nil
}
