// Copyright 2025 Poiesic Systems
//
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

package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// CheckpointRepository stores one resume point per background processor,
// keyed by processor type. Saving overwrites the previous checkpoint.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{backend: backend}
}

// SaveCheckpoint stamps checkpoint.UpdatedAt and persists it.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint == nil || checkpoint.ProcessorType == "" {
		return storage.ErrEmptyProcessorType
	}
	checkpoint.UpdatedAt = time.Now().UTC()
	return r.backend.UpdateWithRetry(ctx, func(tx *badger.Txn) error {
		return writeRecord(tx, makeCheckpointKey(checkpoint.ProcessorType), checkpoint)
	})
}

// LoadCheckpoint returns nil, nil when the processor has never saved one.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error) {
	if processorType == "" {
		return nil, storage.ErrEmptyProcessorType
	}
	var checkpoint *core.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		checkpoint, err = readRecord[core.Checkpoint](tx, makeCheckpointKey(processorType))
		return err
	}, false)
	return checkpoint, err
}

// DeleteCheckpoint is a no-op when no checkpoint exists.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, processorType string) error {
	if processorType == "" {
		return storage.ErrEmptyProcessorType
	}
	return r.backend.UpdateWithRetry(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(processorType))
	})
}
