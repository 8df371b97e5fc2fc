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
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admitflow/platform/shared/types"
)

// mongoArtifact is the persisted document shape. The payload travels as
// raw bytes so Mongo never re-encodes the JSON the checksum was taken over.
type mongoArtifact struct {
	Fingerprint string    `bson:"_id"`
	AgentType   string    `bson:"agent_type"`
	Payload     []byte    `bson:"payload"`
	Checksum    string    `bson:"checksum"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoArtifactStore keeps artifacts in a MongoDB collection keyed by
// fingerprint. The unique _id gives first-writer-wins for free: a losing
// insert reads back the winner.
type MongoArtifactStore struct {
	collection *mongo.Collection
}

var _ ArtifactStore = (*MongoArtifactStore)(nil)

// NewMongoArtifactStore connects to MongoDB and returns the store over
// database/collection "admitflow.artifacts" unless overridden.
func NewMongoArtifactStore(ctx context.Context, uri, database string) (*MongoArtifactStore, error) {
	if database == "" {
		database = "admitflow"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoArtifactStore{collection: client.Database(database).Collection("artifacts")}, nil
}

// Get returns the artifact for a fingerprint.
func (s *MongoArtifactStore) Get(ctx context.Context, fingerprint string) (types.Artifact, bool, error) {
	var doc mongoArtifact
	err := s.collection.FindOne(ctx, bson.M{"_id": fingerprint}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Artifact{}, false, nil
	}
	if err != nil {
		return types.Artifact{}, false, fmt.Errorf("artifact read failed: %w", err)
	}
	return doc.toArtifact(), true, nil
}

// Put inserts the artifact; on a duplicate fingerprint the stored winner
// is read back and returned.
func (s *MongoArtifactStore) Put(ctx context.Context, artifact types.Artifact) (types.Artifact, error) {
	doc := mongoArtifact{
		Fingerprint: artifact.Fingerprint,
		AgentType:   string(artifact.AgentType),
		Payload:     artifact.Payload,
		Checksum:    artifact.Checksum,
		CreatedAt:   artifact.CreatedAt,
	}

	_, err := s.collection.InsertOne(ctx, doc)
	if err == nil {
		return artifact, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return types.Artifact{}, fmt.Errorf("artifact write failed: %w", err)
	}

	existing, found, err := s.Get(ctx, artifact.Fingerprint)
	if err != nil {
		return types.Artifact{}, err
	}
	if !found {
		return types.Artifact{}, fmt.Errorf("artifact %s vanished after duplicate insert", artifact.Fingerprint)
	}
	return existing, nil
}

func (d mongoArtifact) toArtifact() types.Artifact {
	return types.Artifact{
		Fingerprint: d.Fingerprint,
		AgentType:   types.AgentType(d.AgentType),
		Payload:     d.Payload,
		Checksum:    d.Checksum,
		CreatedAt:   d.CreatedAt,
	}
}
