// Copyright 2025 AdmitFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"admitflow/platform/orchestrator/llm"
)

// Config is the service configuration: a YAML file for the job policy,
// environment variables for endpoints and credentials. Env always wins
// over the file so deployments can override without editing it.
type Config struct {
	Port string `yaml:"port"`

	// DatabaseURL selects Postgres for applications/events/jobs; empty
	// falls back to the in-memory stores (single node, tests).
	DatabaseURL string `yaml:"database_url"`

	// RedisURL enables the cross-replica lease guard and, when no Mongo
	// is configured, the Redis artifact store.
	RedisURL string `yaml:"redis_url"`

	// MongoURL selects MongoDB as the artifact store.
	MongoURL      string `yaml:"mongo_url"`
	MongoDatabase string `yaml:"mongo_database"`

	Provider ProviderConfig `yaml:"provider"`
	Jobs     JobConfig      `yaml:"jobs"`
}

// ProviderConfig selects and configures the AI provider.
type ProviderConfig struct {
	// Kind is "openai" or "mock". Mock serves local development without
	// credentials.
	Kind           string `yaml:"kind"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// JobConfig is the retry and lease policy for agent jobs.
type JobConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms"`
	BackoffFactor     float64 `yaml:"backoff_factor"`
	Jitter            float64 `yaml:"jitter"`
	LeaseTTLSeconds   int     `yaml:"lease_ttl_seconds"`
	AttemptTimeoutSec int     `yaml:"attempt_timeout_seconds"`
	JoinPollMS        int     `yaml:"join_poll_ms"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Port: "8081",
		Provider: ProviderConfig{
			Kind: "openai",
		},
		Jobs: JobConfig{
			MaxAttempts:       3,
			InitialBackoffMS:  200,
			MaxBackoffMS:      5000,
			BackoffFactor:     2.0,
			Jitter:            0.2,
			LeaseTTLSeconds:   120,
			AttemptTimeoutSec: 90,
			JoinPollMS:        250,
		},
	}
}

// LoadConfig reads the YAML file at path (missing file is not an error)
// and applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.MongoURL = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		c.MongoDatabase = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Provider.APIKey = v
		if c.Provider.Kind == "" {
			c.Provider.Kind = "openai"
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("PROVIDER_KIND"); v != "" {
		c.Provider.Kind = v
	}
}

func (c *Config) validate() error {
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("jobs.max_attempts must be at least 1, got %d", c.Jobs.MaxAttempts)
	}
	if c.Jobs.BackoffFactor < 1.0 {
		return fmt.Errorf("jobs.backoff_factor must be at least 1.0, got %g", c.Jobs.BackoffFactor)
	}
	switch c.Provider.Kind {
	case "openai", "mock":
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	return nil
}

// EngineConfig translates the job policy into the engine's configuration.
func (c Config) EngineConfig() EngineConfig {
	return EngineConfig{
		Retry: llm.RetryConfig{
			MaxAttempts:    c.Jobs.MaxAttempts,
			InitialBackoff: time.Duration(c.Jobs.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(c.Jobs.MaxBackoffMS) * time.Millisecond,
			BackoffFactor:  c.Jobs.BackoffFactor,
			Jitter:         c.Jobs.Jitter,
		},
		LeaseTTL:       time.Duration(c.Jobs.LeaseTTLSeconds) * time.Second,
		AttemptTimeout: time.Duration(c.Jobs.AttemptTimeoutSec) * time.Second,
		JoinPoll:       time.Duration(c.Jobs.JoinPollMS) * time.Millisecond,
	}
}
