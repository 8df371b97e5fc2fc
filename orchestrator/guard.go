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
	"sync"
	"time"

	"admitflow/platform/shared/types"
)

// Guard enforces at-most-one in-flight job per (application, agent type).
// Leases expire after their TTL so a crashed worker cannot deadlock the
// pair; Renew extends a held lease between retry attempts.
type Guard interface {
	// Acquire claims the pair. When the pair is already held by an
	// unexpired lease, acquired is false and current is that lease so the
	// caller can join the in-flight job.
	Acquire(ctx context.Context, lease types.Lease, ttl time.Duration) (acquired bool, current types.Lease, err error)

	// Renew extends the lease if holderToken still holds it.
	Renew(ctx context.Context, applicationID string, agent types.AgentType, holderToken string, ttl time.Duration) error

	// Release drops the lease if holderToken still holds it. Releasing an
	// expired or stolen lease is not an error.
	Release(ctx context.Context, applicationID string, agent types.AgentType, holderToken string) error
}

// MemoryGuard is the in-process Guard used by tests and single-node
// deployments without Redis.
type MemoryGuard struct {
	mu     sync.Mutex
	leases map[string]types.Lease
	now    func() time.Time
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{leases: make(map[string]types.Lease), now: time.Now}
}

// Acquire claims the pair unless an unexpired lease holds it.
func (g *MemoryGuard) Acquire(ctx context.Context, lease types.Lease, ttl time.Duration) (bool, types.Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := lease.Key()
	if current, ok := g.leases[key]; ok && current.ExpiresAt.After(g.now()) {
		return false, current, nil
	}

	lease.ExpiresAt = g.now().Add(ttl)
	g.leases[key] = lease
	return true, lease, nil
}

// Renew extends the lease when the holder still owns it.
func (g *MemoryGuard) Renew(ctx context.Context, applicationID string, agent types.AgentType, holderToken string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := types.LeaseKey(applicationID, agent)
	current, ok := g.leases[key]
	if !ok || current.HolderToken != holderToken || !current.ExpiresAt.After(g.now()) {
		return newError(ErrCodeLeaseTimeout, "lease %s no longer held by %s", key, holderToken)
	}

	current.ExpiresAt = g.now().Add(ttl)
	g.leases[key] = current
	return nil
}

// Release drops the lease when the holder still owns it.
func (g *MemoryGuard) Release(ctx context.Context, applicationID string, agent types.AgentType, holderToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := types.LeaseKey(applicationID, agent)
	if current, ok := g.leases[key]; ok && current.HolderToken == holderToken {
		delete(g.leases, key)
	}
	return nil
}
