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
	"time"

	"admitflow/platform/shared/logger"
	"admitflow/platform/shared/types"
)

// ArtifactCache is the content-addressed cache over an ArtifactStore.
// Entries are immutable once stored; a corrupt entry is reported as a miss
// so the engine regenerates it, converging to the same fingerprint.
type ArtifactCache struct {
	store ArtifactStore
	log   *logger.Logger
}

// NewArtifactCache creates the cache over the given store.
func NewArtifactCache(store ArtifactStore, log *logger.Logger) *ArtifactCache {
	return &ArtifactCache{store: store, log: log}
}

// Lookup returns the artifact for a fingerprint, or nil on miss. An entry
// whose payload no longer matches its checksum is treated as a miss and
// logged as an anomaly.
func (c *ArtifactCache) Lookup(ctx context.Context, fingerprint string) (*types.Artifact, error) {
	artifact, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "artifact lookup failed for %s", fingerprint)
	}
	if !ok {
		return nil, nil
	}

	if Checksum(artifact.Payload) != artifact.Checksum {
		c.log.Error("", "", "artifact failed integrity check, treating as cache miss", map[string]interface{}{
			"fingerprint": fingerprint,
			"agent_type":  string(artifact.AgentType),
		})
		metricCacheCorruptions.Inc()
		return nil, nil
	}

	return &artifact, nil
}

// Commit stores a freshly produced artifact. Puts are first-writer-wins:
// if another writer got there first the stored artifact is returned and
// this one is discarded, so all racers observe the same value.
func (c *ArtifactCache) Commit(ctx context.Context, fingerprint string, agent types.AgentType, payload []byte) (types.Artifact, error) {
	artifact := types.Artifact{
		Fingerprint: fingerprint,
		AgentType:   agent,
		Payload:     payload,
		Checksum:    Checksum(payload),
		CreatedAt:   time.Now().UTC(),
	}

	stored, err := c.store.Put(ctx, artifact)
	if err != nil {
		return types.Artifact{}, wrapError(ErrCodeInternal, err, "artifact commit failed for %s", fingerprint)
	}
	return stored, nil
}
