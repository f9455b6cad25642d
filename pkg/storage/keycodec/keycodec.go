// Package keycodec encodes the per-collection key layout shared by the
// document store and every secondary index: an 8-byte big-endian objectId
// prefix followed by a type-specific suffix, and the bounds pairs used for
// range scans and range-delete.
package keycodec

import (
	"encoding/binary"

	"github.com/cuemby/nexusdb/pkg/types"
)

const (
	objectIDSize = 8
	localIDSize  = 8
	// DocumentKeySize is the length of a primary document key:
	// <objectId:8-BE><LocalDocumentId:8-BE>.
	DocumentKeySize = objectIDSize + localIDSize
)

// EncodeObjectID writes a collection's objectId as an 8-byte big-endian
// prefix, the first component of every key the collection owns.
func EncodeObjectID(objectID uint64) []byte {
	buf := make([]byte, objectIDSize)
	binary.BigEndian.PutUint64(buf, objectID)
	return buf
}

// DocumentKey builds the primary body key for a document:
// <objectId:8-BE><LocalDocumentId:8-BE>.
func DocumentKey(objectID uint64, localID types.LocalDocumentId) []byte {
	buf := make([]byte, DocumentKeySize)
	binary.BigEndian.PutUint64(buf[:objectIDSize], objectID)
	binary.BigEndian.PutUint64(buf[objectIDSize:], uint64(localID))
	return buf
}

// DecodeDocumentKey reverses DocumentKey, returning an error if key is not
// exactly DocumentKeySize bytes.
func DecodeDocumentKey(key []byte) (objectID uint64, localID types.LocalDocumentId, err error) {
	if len(key) != DocumentKeySize {
		return 0, 0, &malformedKeyErr{len: len(key)}
	}
	objectID = binary.BigEndian.Uint64(key[:objectIDSize])
	localID = types.LocalDocumentId(binary.BigEndian.Uint64(key[objectIDSize:]))
	return objectID, localID, nil
}

// IndexKey builds a secondary-index key: <objectId:8-BE><indexId:8-BE><suffix>.
// The suffix is caller-supplied (e.g. a normalized attribute value followed
// by the LocalDocumentId, for uniqueness on non-unique indexes).
func IndexKey(objectID, indexID uint64, suffix []byte) []byte {
	buf := make([]byte, objectIDSize+8+len(suffix))
	binary.BigEndian.PutUint64(buf[:objectIDSize], objectID)
	binary.BigEndian.PutUint64(buf[objectIDSize:objectIDSize+8], indexID)
	copy(buf[objectIDSize+8:], suffix)
	return buf
}

// Bounds is a lexicographic [Start, End) half-open range used for scans and
// range-delete. Implementations must guarantee Start <= any contained key <
// End.
type Bounds struct {
	Start []byte
	End   []byte
}

// Contains reports whether key falls within b (half-open on the end).
func (b Bounds) Contains(key []byte) bool {
	return bytesCompare(key, b.Start) >= 0 && bytesCompare(key, b.End) < 0
}

// CollectionBounds returns the bounds spanning every document key belonging
// to objectID: the prefix range [objectId, objectId+1).
func CollectionBounds(objectID uint64) Bounds {
	return prefixBounds(EncodeObjectID(objectID))
}

// IndexBounds returns the bounds spanning every key belonging to a single
// index within a collection: [objectId|indexId, objectId|indexId+1).
func IndexBounds(objectID, indexID uint64) Bounds {
	prefix := make([]byte, objectIDSize+8)
	binary.BigEndian.PutUint64(prefix[:objectIDSize], objectID)
	binary.BigEndian.PutUint64(prefix[objectIDSize:], indexID)
	return prefixBounds(prefix)
}

// prefixBounds computes [prefix, prefixSuccessor) where prefixSuccessor is
// the smallest key lexicographically greater than every key starting with
// prefix. When prefix is all 0xFF bytes, End is nil, meaning "no upper
// bound" (the caller must treat a nil End as +infinity).
func prefixBounds(prefix []byte) Bounds {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return Bounds{Start: prefix, End: end[:i+1]}
		}
	}
	return Bounds{Start: prefix, End: nil}
}

func bytesCompare(a, b []byte) int {
	if b == nil {
		return -1 // nil End means +infinity: everything is "less than" it
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

type malformedKeyErr struct{ len int }

func (e *malformedKeyErr) Error() string {
	return "keycodec: malformed document key length"
}
