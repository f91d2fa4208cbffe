package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"dropforge/core"
)

// Config carries the dropforged service settings.
type Config struct {
	RPCAddress       string  `toml:"RPCAddress"`
	DataDir          string  `toml:"DataDir"`
	NetworkName      string  `toml:"NetworkName"`
	ChainID          uint64  `toml:"ChainID"`
	LogFile          string  `toml:"LogFile"`
	OperatorIssuer   string  `toml:"OperatorIssuer"`
	OperatorAudience string  `toml:"OperatorAudience"`
	RatePerMinute    float64 `toml:"RatePerMinute"`
	RateBurst        int     `toml:"RateBurst"`
}

// Load loads the configuration from the given path, creating a commented
// default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./dropforge-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "dropforge-local"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = core.DefaultChainID
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 600
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be positive")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
