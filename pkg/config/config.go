package config

// Package config provides a reusable loader for Synnergy configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"ledgerengine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an engine instance. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	Kernel struct {
		MaxCallDepth      int  `mapstructure:"max_call_depth" json:"max_call_depth"`
		DefaultCostUnits  int  `mapstructure:"default_cost_units" json:"default_cost_units"`
		TrackDebug        bool `mapstructure:"track_debug" json:"track_debug"`
	} `mapstructure:"kernel" json:"kernel"`

	Resources struct {
		MaxDivisibility int    `mapstructure:"max_divisibility" json:"max_divisibility"`
		FungibleMintCap string `mapstructure:"fungible_mint_cap" json:"fungible_mint_cap"`
	} `mapstructure:"resources" json:"resources"`

	WASM struct {
		CostUnitLimit  int  `mapstructure:"cost_unit_limit" json:"cost_unit_limit"`
		MemoryPages    int  `mapstructure:"memory_pages" json:"memory_pages"`
		HostDebug      bool `mapstructure:"host_debug" json:"host_debug"`
	} `mapstructure:"wasm" json:"wasm"`

	Storage struct {
		DBPath    string `mapstructure:"db_path" json:"db_path"`
		CacheSize int    `mapstructure:"cache_size" json:"cache_size"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up matching process environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SYNN_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SYNN_ENV", ""))
}
