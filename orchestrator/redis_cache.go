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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"admitflow/platform/shared/types"
)

// RedisArtifactStore keeps artifacts in Redis. Entries are content
// addressed and immutable, so an optional retention TTL only turns old
// fingerprints back into cache misses; it never affects correctness.
type RedisArtifactStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

var _ ArtifactStore = (*RedisArtifactStore)(nil)

// NewRedisArtifactStore creates the store over an existing Redis client.
// retention 0 keeps artifacts until external eviction.
func NewRedisArtifactStore(client *redis.Client, retention time.Duration) *RedisArtifactStore {
	return &RedisArtifactStore{client: client, prefix: "artifact:", retention: retention}
}

// Get returns the artifact for a fingerprint.
func (s *RedisArtifactStore) Get(ctx context.Context, fingerprint string) (types.Artifact, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Artifact{}, false, nil
	}
	if err != nil {
		return types.Artifact{}, false, fmt.Errorf("artifact read failed: %w", err)
	}

	var artifact types.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return types.Artifact{}, false, fmt.Errorf("failed to decode artifact %s: %w", fingerprint, err)
	}
	return artifact, true, nil
}

// Put stores the artifact with SET NX; when another writer got there first
// the stored artifact is read back and returned.
func (s *RedisArtifactStore) Put(ctx context.Context, artifact types.Artifact) (types.Artifact, error) {
	encoded, err := json.Marshal(artifact)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to encode artifact: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.prefix+artifact.Fingerprint, encoded, s.retention).Result()
	if err != nil {
		return types.Artifact{}, fmt.Errorf("artifact write failed: %w", err)
	}
	if ok {
		return artifact, nil
	}

	existing, found, err := s.Get(ctx, artifact.Fingerprint)
	if err != nil {
		return types.Artifact{}, err
	}
	if !found {
		// The winner expired between SETNX and GET; store ours.
		return s.Put(ctx, artifact)
	}
	return existing, nil
}
