package config

import (
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "snapdiff.yaml"

type Config struct {
	Ignore      []string      `yaml:"ignore"`
	Workers     int           `yaml:"workers"`
	Listers     int           `yaml:"listers"`
	HashTimeout time.Duration `yaml:"hash_timeout"`
	OutputFile  string        `yaml:"output_file"`
	PatchDir    string        `yaml:"patch_dir"`
	ReleaseDir  string        `yaml:"release_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Ignore:     []string{},
		Workers:    runtime.NumCPU() * 2,
		Listers:    runtime.NumCPU(),
		OutputFile: "out.bin.gz",
		PatchDir:   "./patch",
		ReleaseDir: "./release",
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig. A missing
// file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Initialize Ignore slice if nil (for configs with an explicit null)
	if cfg.Ignore == nil {
		cfg.Ignore = []string{}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Listers < 1 {
		return errors.Errorf("listers must be at least 1, got %d", c.Listers)
	}
	if c.HashTimeout < 0 {
		return errors.Errorf("hash_timeout must not be negative, got %v", c.HashTimeout)
	}
	return nil
}
