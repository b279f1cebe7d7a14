package search

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
)

// CacheKey identifies a response by normalized query, filter, mode, top_k,
// min_score and taxonomy version. Fields are length-prefixed so no two field
// tuples share a key.
func CacheKey(req *request.Request, taxonomyVersion string) string {
	h := sha256.New()
	writeField(h, taxonomyVersion)
	writeField(h, req.NormalizedQuery())
	writeField(h, req.Filter().Canonical())
	writeField(h, string(req.Mode()))
	writeField(h, strconv.Itoa(req.TopK()))
	writeField(h, strconv.FormatFloat(req.MinScore(), 'g', -1, 64))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryHash is a short, log-safe fingerprint of the normalized query.
func QueryHash(req *request.Request) string {
	sum := sha256.Sum256([]byte(req.NormalizedQuery()))
	return hex.EncodeToString(sum[:8])
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
