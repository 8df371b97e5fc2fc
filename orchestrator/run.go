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
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"

	"admitflow/platform/orchestrator/agents"
	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/orchestrator/llm/openai"
	"admitflow/platform/shared/logger"
)

// Run is the exported entry point for the lifecycle orchestrator service.
//
// It loads configuration, wires the stores, engine, and state machine, and
// starts the HTTP server. The function blocks until the server exits.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8081)
//   - CONFIG_PATH: YAML job/provider policy (default: config.yaml)
//   - DATABASE_URL: PostgreSQL connection string (optional; in-memory otherwise)
//   - REDIS_URL: Redis for leases and artifacts (optional)
//   - MONGO_URL: MongoDB artifact store (optional; overrides Redis for artifacts)
//   - OPENAI_API_KEY: OpenAI-compatible provider key
func Run() {
	lg := logger.New("orchestrator")
	lg.Info("", "", "starting AdmitFlow lifecycle orchestrator", nil)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		log.Fatalf("failed to initialize provider: %v", err)
	}
	lg.Info("", "", "provider initialized", map[string]interface{}{
		"provider": provider.Name(),
		"type":     string(provider.Type()),
	})

	apps, events, jobs, err := buildStores(cfg)
	if err != nil {
		log.Fatalf("failed to initialize stores: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		lg.Info("", "", "redis connected", nil)
	}

	artifacts, err := buildArtifactStore(cfg, redisClient)
	if err != nil {
		log.Fatalf("failed to initialize artifact store: %v", err)
	}

	var guard Guard = NewMemoryGuard()
	if redisClient != nil {
		guard = NewRedisGuard(redisClient)
	}

	cache := NewArtifactCache(artifacts, lg)
	eventLog := NewEventLog(events, lg)
	engine := NewJobEngine(agents.NewRegistry(provider), cache, guard, eventLog, jobs, cfg.EngineConfig(), lg)
	machine := NewStateMachine(apps, eventLog, engine, cache, lg)
	server := NewServer(machine, lg)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	lg.Info("", "", "orchestrator listening", map[string]interface{}{"port": cfg.Port})
	log.Fatal(http.ListenAndServe(":"+cfg.Port, c.Handler(server.Router())))
}

// buildProvider constructs the configured AI provider. The mock provider
// serves local development without credentials.
func buildProvider(cfg ProviderConfig) (llm.Provider, error) {
	switch cfg.Kind {
	case "mock":
		return llm.NewMockProvider("mock", "mock completion"), nil
	case "openai":
		return openai.NewProvider(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// buildStores selects Postgres when configured, in-memory otherwise.
func buildStores(cfg Config) (ApplicationStore, EventStore, JobStore, error) {
	if cfg.DatabaseURL == "" {
		return NewMemoryApplicationStore(), NewMemoryEventStore(), NewMemoryJobStore(), nil
	}

	pg, err := NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	return pg, pg, pg.Jobs(), nil
}

// buildArtifactStore prefers Mongo, then Redis, then memory.
func buildArtifactStore(cfg Config, redisClient *redis.Client) (ArtifactStore, error) {
	if cfg.MongoURL != "" {
		return NewMongoArtifactStore(context.Background(), cfg.MongoURL, cfg.MongoDatabase)
	}
	if redisClient != nil {
		return NewRedisArtifactStore(redisClient, 0), nil
	}
	return NewMemoryArtifactStore(), nil
}
