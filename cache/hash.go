package cache

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/marginalia/core"
)

// QueryHash returns the hex BLAKE2b-128 digest of the query's normalized
// text, context, and normalized parameters. Fields are written in a fixed
// order, each string length-prefixed, so no two distinct keys share an input.
// Sources are sorted by SearchParams.Normalize, so their order never matters.
func QueryHash(q core.Query) string {
	params := q.Params.Normalize()
	normalized := q.Normalized
	if normalized == "" {
		normalized = core.NormalizeText(q.Text)
	}

	h, _ := blake2b.New(16, nil) // only fails for an invalid size or key
	w := keyWriter{h: h}
	w.writeString(normalized)
	w.writeString(q.Context.UserID)
	w.writeUint(uint64(q.Context.DocumentID))
	w.writeString(q.Context.Chapter)
	w.writeUint(uint64(params.Limit))
	w.writeUint(math.Float64bits(params.RelevanceThreshold))
	w.writeUint(uint64(len(params.Sources)))
	for _, src := range params.Sources {
		w.writeString(string(src))
	}
	w.writeBool(params.SingleDocument)
	w.writeBool(params.DisableEmbeddings)
	return hex.EncodeToString(h.Sum(nil))
}

type keyWriter struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func (w *keyWriter) writeUint(v uint64) {
	n := binary.PutUvarint(w.buf[:], v)
	w.h.Write(w.buf[:n])
}

func (w *keyWriter) writeString(s string) {
	w.writeUint(uint64(len(s)))
	w.h.Write([]byte(s))
}

func (w *keyWriter) writeBool(b bool) {
	if b {
		w.writeUint(1)
		return
	}
	w.writeUint(0)
}
