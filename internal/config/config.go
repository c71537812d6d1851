// Package config loads the discovery daemon configuration from YAML with
// environment expansion and overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lalalune/babylon-sub000/pkg/utils"
)

type AgentConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Agent0Config struct {
	Enabled           bool   `yaml:"enabled"`
	SubgraphURL       string `yaml:"subgraph_url"`
	FeedbackURL       string `yaml:"feedback_url"`
	IPFSGateway       string `yaml:"ipfs_gateway"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

type ChainConfig struct {
	RPC                string `yaml:"rpc"`
	ReputationRegistry string `yaml:"reputation_registry"`
}

type BabylonConfig struct {
	Aliases    []string `yaml:"aliases"`
	MaxRetries int      `yaml:"max_retries"`
}

type StorageConfig struct {
	PostgresURL string `yaml:"postgres_url"`
}

type AppConfig struct {
	Agent   AgentConfig     `yaml:"agent"`
	Agent0  Agent0Config    `yaml:"agent0"`
	Chain   ChainConfig     `yaml:"chain"`
	Babylon BabylonConfig   `yaml:"babylon"`
	Storage StorageConfig   `yaml:"storage"`
	Logging utils.LogConfig `yaml:"logging"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Agent: AgentConfig{
			Name:    "babylon-discovery",
			Version: "1.0.0",
		},
		Agent0: Agent0Config{
			Enabled:           false,
			IPFSGateway:       "https://ipfs.io",
			RequestTimeoutSec: 10,
		},
		Babylon: BabylonConfig{
			Aliases:    []string{"babylon"},
			MaxRetries: 3,
		},
		Logging: utils.DefaultLogConfig(),
	}
}

// LoadConfig loads configuration from a YAML file. A missing file falls
// back to defaults; environment overrides apply either way.
func LoadConfig(path string, logger *logrus.Logger) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("Configuration file %s not found, using defaults", path)
		applyEnvironmentOverrides(config)
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	configString := utils.ExpandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(configString), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	applyEnvironmentOverrides(config)

	return config, nil
}

func validateConfig(config *AppConfig) error {
	if config.Agent.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if config.Agent0.Enabled && config.Agent0.SubgraphURL == "" {
		return fmt.Errorf("agent0.subgraph_url must be set when agent0 is enabled")
	}
	if config.Agent0.RequestTimeoutSec < 0 {
		return fmt.Errorf("agent0.request_timeout_sec cannot be negative")
	}

	if len(config.Babylon.Aliases) == 0 {
		return fmt.Errorf("babylon.aliases cannot be empty")
	}
	if config.Babylon.MaxRetries <= 0 {
		return fmt.Errorf("babylon.max_retries must be positive")
	}

	if config.Chain.ReputationRegistry != "" && config.Chain.RPC == "" {
		return fmt.Errorf("chain.rpc must be set when a reputation registry is configured")
	}

	return nil
}

func applyEnvironmentOverrides(config *AppConfig) {
	if v := utils.GetEnv("AGENT0_SUBGRAPH_URL", ""); v != "" {
		config.Agent0.SubgraphURL = v
	}
	if v := utils.GetEnv("AGENT0_ENABLED", ""); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.Agent0.Enabled = enabled
		}
	}
	if v := utils.GetEnv("IPFS_GATEWAY", ""); v != "" {
		config.Agent0.IPFSGateway = v
	}
	if v := utils.GetEnv("DATABASE_URL", ""); v != "" {
		config.Storage.PostgresURL = v
	}
	if v := utils.GetEnv("CHAIN_RPC", ""); v != "" {
		config.Chain.RPC = v
	}
	if v := utils.GetEnv("LOG_LEVEL", ""); v != "" {
		config.Logging.Level = v
	}
}
