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

// Package main is the entry point for the AdmitFlow lifecycle orchestrator.
//
// The orchestrator drives study-abroad applications through their lifecycle:
// - Validates and applies state transitions under optimistic concurrency
// - Dispatches AI agent jobs (essay generation, scoring, requirement
//   parsing, program matching) with retry and lease-based deduplication
// - Caches agent artifacts by input fingerprint
// - Records an append-only event log per application
//
// Usage:
//
//	./orchestrator
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8081)
//	CONFIG_PATH - YAML configuration file (default: config.yaml)
//	DATABASE_URL - PostgreSQL connection string (optional)
//	REDIS_URL - Redis connection string for leases and artifacts (optional)
//	MONGO_URL - MongoDB connection string for artifacts (optional)
//	OPENAI_API_KEY - OpenAI API key
//	PROVIDER_KIND - "openai" or "mock" (default: openai)
package main

import (
	"admitflow/platform/orchestrator"
)

func main() {
	orchestrator.Run()
}
