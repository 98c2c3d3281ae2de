package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// FragmentRepository implements storage.FragmentRepository for BadgerDB.
type FragmentRepository struct {
	backend *Backend
}

var _ storage.FragmentRepository = (*FragmentRepository)(nil)

// NewFragmentRepository creates a new FragmentRepository.
func NewFragmentRepository(backend *Backend) *FragmentRepository {
	return &FragmentRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *FragmentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *FragmentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutFragments replaces the fragments stored for documentID.
func (r *FragmentRepository) PutFragments(ctx context.Context, documentID core.ID, version time.Time, fragments []core.ContentFragment) error {
	data, err := storage.MarshalFragments(documentID, version, fragments)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeFragmentKey(documentID), data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetFragments returns the stored fragments and their version.
func (r *FragmentRepository) GetFragments(ctx context.Context, documentID core.ID) ([]core.ContentFragment, time.Time, error) {
	var (
		fragments []core.ContentFragment
		version   time.Time
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeFragmentKey(documentID))
		if err != nil {
			return err
		}
		if val == nil {
			return storage.ErrNotFound
		}
		fragments, version, err = storage.UnmarshalFragments(val)
		return err
	}, false)
	return fragments, version, err
}

// DeleteFragments removes the fragments for documentID.
func (r *FragmentRepository) DeleteFragments(ctx context.Context, documentID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeFragmentKey(documentID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
