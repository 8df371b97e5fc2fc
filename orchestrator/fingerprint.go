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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"admitflow/platform/shared/types"
)

// Fingerprint computes the cache/idempotency key for one agent invocation:
// hex sha256 over (agent type, normalized input). Fields are length-prefixed
// so no two distinct field sequences can collide by concatenation.
func Fingerprint(agent types.AgentType, normalized []byte) string {
	h := sha256.New()
	writeField(h, []byte(agent))
	writeField(h, normalized)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum computes the hex sha256 integrity checksum of an artifact payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func writeField(h hash.Hash, field []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(field)))
	h.Write(length[:])
	h.Write(field)
}
