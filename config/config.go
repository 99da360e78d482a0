package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults match a stock local Ollama install
const (
	DefaultServer  = "http://localhost:11434"
	DefaultModel   = "llava"
	DefaultPrompt  = "Describe this image"
	DefaultTimeout = 300
)

// Config holds visiontagger configuration
type Config struct {
	Server         string `yaml:"server"`
	Model          string `yaml:"model"`
	Prompt         string `yaml:"prompt"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server:         DefaultServer,
		Model:          DefaultModel,
		Prompt:         DefaultPrompt,
		TimeoutSeconds: DefaultTimeout,
	}
}

// Timeout returns the per-request timeout as a duration
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration with the following precedence (highest first):
// environment variables (VISIONTAGGER_SERVER, VISIONTAGGER_MODEL), the
// config file, built-in defaults. A missing config file is not an error.
func Load() (Config, error) {
	cfg, err := loadFrom(configPath())
	if err != nil {
		return cfg, err
	}

	if server := os.Getenv("VISIONTAGGER_SERVER"); server != "" {
		cfg.Server = server
	}
	if model := os.Getenv("VISIONTAGGER_MODEL"); model != "" {
		cfg.Model = model
	}
	return cfg, nil
}

func loadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Server != "" {
		cfg.Server = file.Server
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.Prompt != "" {
		cfg.Prompt = file.Prompt
	}
	if file.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = file.TimeoutSeconds
	}
	return cfg, nil
}

func configPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "visiontagger", "config.yaml")
}
