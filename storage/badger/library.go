package badger

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// LibraryRepository implements storage.LibraryRepository for BadgerDB.
type LibraryRepository struct {
	backend *Backend
}

var _ storage.LibraryRepository = (*LibraryRepository)(nil)

// NewLibraryRepository creates a new LibraryRepository.
func NewLibraryRepository(backend *Backend) *LibraryRepository {
	return &LibraryRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *LibraryRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *LibraryRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// documentID derives an ID for a document stored without one. The text is
// part of the input so two editions sharing a title and author stay distinct.
func documentID(doc *core.Document) core.ID {
	return core.IDFromContent(doc.UserID + "\x00" + doc.Title + "\x00" + doc.Author + "\x00" + doc.Text())
}

func annotationID(a *core.Annotation) core.ID {
	return core.IDFromContent(a.UserID + "\x00" + strconv.FormatUint(uint64(a.DocumentID), 10) + "\x00" +
		a.Chapter + "\x00" + a.Highlight + "\x00" + a.Note)
}

// PutDocuments inserts or replaces documents.
func (r *LibraryRepository) PutDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, doc := range docs {
			if doc.ID == 0 {
				doc.ID = documentID(doc)
			}
			doc.UpdatedAt = time.Now().UTC()

			key := makeDocumentKey(doc.ID)
			old, err := readRecord[core.Document](tx, key)
			if err != nil {
				return err
			}
			if old != nil && old.UserID != doc.UserID {
				if err := tx.Delete(makeUserIndexKey(documentUserPrefix, old.UserID, old.ID)); err != nil {
					return err
				}
			}

			if err := writeRecord(tx, key, doc); err != nil {
				return err
			}
			if err := tx.Set(makeUserIndexKey(documentUserPrefix, doc.UserID, doc.ID), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocuments removes documents, their annotations, and their stored fragments.
func (r *LibraryRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeDocumentKey(id)
			doc, err := readRecord[core.Document](tx, key)
			if err != nil {
				return err
			}
			if doc == nil {
				return storage.ErrNotFound
			}

			var annotationKeys [][]byte
			err = scanKeys(tx, makeUserIndexKey(annotationUserPrefix, doc.UserID, doc.ID), func(k []byte) error {
				annotationKeys = append(annotationKeys, k)
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range annotationKeys {
				if err := tx.Delete(makeAnnotationKey(trailingID(k))); err != nil {
					return err
				}
				if err := tx.Delete(k); err != nil {
					return err
				}
			}

			if err := tx.Delete(makeFragmentKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeUserIndexKey(documentUserPrefix, doc.UserID, doc.ID)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a single document by ID.
func (r *LibraryRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord[core.Document](tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocuments retrieves multiple documents by their IDs.
func (r *LibraryRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readRecord[core.Document](tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				result = append(result, doc)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments returns every document owned by userID.
func (r *LibraryRepository) ListDocuments(ctx context.Context, userID string) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, makeUserIndexPrefix(documentUserPrefix, userID), func(k []byte) error {
			doc, err := readRecord[core.Document](tx, makeDocumentKey(trailingID(k)))
			if err != nil {
				return err
			}
			if doc != nil {
				result = append(result, doc)
			}
			return nil
		})
	}, false)
	return result, err
}

// ListAllDocuments returns every document in the store.
func (r *LibraryRepository) ListAllDocuments(ctx context.Context) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(documentPrefix+":"), func(_, val []byte) error {
			doc, err := storage.Unmarshal[core.Document](val)
			if err != nil {
				return err
			}
			result = append(result, doc)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(result, func(a, b *core.Document) int {
		return compareIDs(a.ID, b.ID)
	})
	return result, nil
}

// PutAnnotations inserts or replaces annotations.
func (r *LibraryRepository) PutAnnotations(ctx context.Context, annotations ...*core.Annotation) ([]*core.Annotation, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, a := range annotations {
			if a.ID == 0 {
				a.ID = annotationID(a)
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			if err := writeRecord(tx, makeAnnotationKey(a.ID), a); err != nil {
				return err
			}
			if err := tx.Set(makeUserIndexKey(annotationUserPrefix, a.UserID, a.DocumentID, a.ID), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return annotations, nil
}

// ListAnnotations returns a user's annotations, optionally for one document.
func (r *LibraryRepository) ListAnnotations(ctx context.Context, userID string, documentID core.ID) ([]*core.Annotation, error) {
	prefix := makeUserIndexPrefix(annotationUserPrefix, userID)
	if documentID != 0 {
		prefix = makeUserIndexKey(annotationUserPrefix, userID, documentID)
	}

	var result []*core.Annotation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, prefix, func(k []byte) error {
			a, err := readRecord[core.Annotation](tx, makeAnnotationKey(trailingID(k)))
			if err != nil {
				return err
			}
			if a != nil {
				result = append(result, a)
			}
			return nil
		})
	}, false)
	return result, err
}

// PutMemories inserts or replaces memory records.
func (r *LibraryRepository) PutMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, m := range memories {
			if m.ID == 0 {
				m.ID = core.IDFromContent(m.UserID + "\x00" + m.Content)
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now().UTC()
			}
			if err := writeRecord(tx, makeMemoryKey(m.ID), m); err != nil {
				return err
			}
			if err := tx.Set(makeUserIndexKey(memoryUserPrefix, m.UserID, m.ID), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return memories, nil
}

// ListMemories returns a user's memory records.
func (r *LibraryRepository) ListMemories(ctx context.Context, userID string) ([]*core.Memory, error) {
	var result []*core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, makeUserIndexPrefix(memoryUserPrefix, userID), func(k []byte) error {
			m, err := readRecord[core.Memory](tx, makeMemoryKey(trailingID(k)))
			if err != nil {
				return err
			}
			if m != nil {
				result = append(result, m)
			}
			return nil
		})
	}, false)
	return result, err
}

// readRecord loads and decodes the JSON record at key. Returns nil, nil when missing.
func readRecord[T any](tx *badger.Txn, key []byte) (*T, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.Unmarshal[T](val)
}

// writeRecord encodes v as JSON and stores it at key.
func writeRecord(tx *badger.Txn, key []byte, v any) error {
	data, err := storage.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Set(key, data)
}

func compareIDs(a, b core.ID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
