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

// renewScript extends the TTL only when the holder still owns the lease.
var renewScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then return 0 end
local lease = cjson.decode(current)
if lease.holder_token ~= ARGV[1] then return 0 end
lease.expires_at = ARGV[3]
redis.call("SET", KEYS[1], cjson.encode(lease), "PX", tonumber(ARGV[2]))
return 1
`)

// releaseScript deletes the lease only when the holder still owns it.
var releaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then return 1 end
local lease = cjson.decode(current)
if lease.holder_token ~= ARGV[1] then return 0 end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisGuard is the cross-replica Guard. Mutual exclusion rides on SET NX
// with a TTL; renewal and release are holder-checked Lua scripts so a
// slow worker cannot release a lease Redis already expired and reassigned.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

var _ Guard = (*RedisGuard)(nil)

// NewRedisGuard creates the guard over an existing Redis client.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client, prefix: "lease:"}
}

func (g *RedisGuard) key(applicationID string, agent types.AgentType) string {
	return g.prefix + types.LeaseKey(applicationID, agent)
}

// Acquire claims the pair with SET NX PX. When the pair is already held,
// the current lease is returned so the caller can join its job.
func (g *RedisGuard) Acquire(ctx context.Context, lease types.Lease, ttl time.Duration) (bool, types.Lease, error) {
	lease.ExpiresAt = time.Now().Add(ttl).UTC()
	encoded, err := json.Marshal(lease)
	if err != nil {
		return false, types.Lease{}, fmt.Errorf("failed to encode lease: %w", err)
	}

	key := g.key(lease.ApplicationID, lease.AgentType)
	ok, err := g.client.SetNX(ctx, key, encoded, ttl).Result()
	if err != nil {
		return false, types.Lease{}, fmt.Errorf("lease acquire failed: %w", err)
	}
	if ok {
		return true, lease, nil
	}

	raw, err := g.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Holder expired between SETNX and GET; report busy with an
		// already-expired lease so the caller retries acquisition.
		return false, types.Lease{ApplicationID: lease.ApplicationID, AgentType: lease.AgentType, ExpiresAt: time.Now()}, nil
	}
	if err != nil {
		return false, types.Lease{}, fmt.Errorf("lease read failed: %w", err)
	}

	var current types.Lease
	if err := json.Unmarshal(raw, &current); err != nil {
		return false, types.Lease{}, fmt.Errorf("failed to decode lease: %w", err)
	}
	return false, current, nil
}

// Renew extends the lease when the holder still owns it.
func (g *RedisGuard) Renew(ctx context.Context, applicationID string, agent types.AgentType, holderToken string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)
	res, err := renewScript.Run(ctx, g.client,
		[]string{g.key(applicationID, agent)},
		holderToken, ttl.Milliseconds(), expiresAt).Int()
	if err != nil {
		return fmt.Errorf("lease renew failed: %w", err)
	}
	if res != 1 {
		return newError(ErrCodeLeaseTimeout, "lease %s no longer held by %s",
			types.LeaseKey(applicationID, agent), holderToken)
	}
	return nil
}

// Release drops the lease when the holder still owns it. A lease Redis
// already expired is treated as released.
func (g *RedisGuard) Release(ctx context.Context, applicationID string, agent types.AgentType, holderToken string) error {
	_, err := releaseScript.Run(ctx, g.client,
		[]string{g.key(applicationID, agent)}, holderToken).Int()
	if err != nil {
		return fmt.Errorf("lease release failed: %w", err)
	}
	return nil
}
