package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/marginalia/core"
)

// Key prefixes for different data types
const (
	documentPrefix       = "doc"
	documentUserPrefix   = "docu"
	annotationPrefix     = "ann"
	annotationUserPrefix = "annu"
	memoryPrefix         = "mem"
	memoryUserPrefix     = "memu"
	fragmentPrefix       = "frag"
	cacheHeaderPrefix    = "qce"
	cacheBodyPrefix      = "qcr"
	cacheUserPrefix      = "qcu"
	checkpointPrefix     = "chkpt"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeUserIndexKey generates a composite key for a per-user index.
// Format: prefix:userID\x00id[:id2]
// IDs are written BigEndian so lexicographic order matches numeric order.
func makeUserIndexKey(prefix, userID string, ids ...core.ID) []byte {
	buf := makeUserIndexPrefix(prefix, userID)
	for _, id := range ids {
		buf = binary.BigEndian.AppendUint64(buf, uint64(id))
	}
	return buf
}

// makeUserIndexPrefix generates the scan prefix for a user's index entries.
func makeUserIndexPrefix(prefix, userID string) []byte {
	buf := make([]byte, 0, len(prefix)+len(userID)+18)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = append(buf, userID...)
	buf = append(buf, 0)
	return buf
}

// trailingID reads the last 8 bytes of an index key as an ID.
func trailingID(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeAnnotationKey generates a key for an annotation by ID.
func makeAnnotationKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", annotationPrefix, id))
}

// makeMemoryKey generates a key for a memory record by ID.
func makeMemoryKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", memoryPrefix, id))
}

// makeFragmentKey generates a key for a document's fragment set.
func makeFragmentKey(documentID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", fragmentPrefix, documentID))
}

// makeCacheHeaderKey generates the key for a cache entry's bookkeeping record.
func makeCacheHeaderKey(hash string) []byte {
	return []byte(cacheHeaderPrefix + ":" + hash)
}

// makeCacheBodyKey generates the key for a cache entry's results.
func makeCacheBodyKey(hash string) []byte {
	return []byte(cacheBodyPrefix + ":" + hash)
}

// makeCacheUserKey generates the per-user index key for a cache entry.
func makeCacheUserKey(userID, hash string) []byte {
	return append(makeUserIndexPrefix(cacheUserPrefix, userID), hash...)
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:%s", checkpointPrefix, processorType))
}
