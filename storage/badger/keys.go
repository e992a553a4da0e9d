package badger

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/poiesic/corpora/core"
)

// Key prefixes for different data types
const (
	collectionPrefix      = "col:"
	documentPrefix        = "doc:"
	documentStatusPrefix  = "docst:"
	documentKeywordPrefix = "dockw:"
	elementPrefix         = "el:"
	elementIdentPrefix    = "elid:"
)

// sep separates variable-length key segments. It cannot appear in ids or
// normalized keywords.
const sep = 0x00

func makeCollectionKey(id string) []byte {
	return []byte(collectionPrefix + id)
}

func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeStatusKey generates a composite key for the status index.
// Format: prefix status 0x00 createdAt(8, BigEndian) id
func makeStatusKey(status core.DocumentStatus, createdAt time.Time, id string) []byte {
	buf := makeStatusPrefix(status)
	var ts [8]byte
	// BigEndian so lexicographic order is creation order
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt.UnixMicro()))
	buf = append(buf, ts[:]...)
	return append(buf, id...)
}

// makeStatusPrefix generates a partial key covering one status.
func makeStatusPrefix(status core.DocumentStatus) []byte {
	buf := make([]byte, 0, len(documentStatusPrefix)+len(status)+1+8+36)
	buf = append(buf, documentStatusPrefix...)
	buf = append(buf, status...)
	return append(buf, sep)
}

// normalizeTerm folds a keyword for index lookups.
func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// makeKeywordKey generates a composite key for the keyword index.
// Format: prefix collection 0x00 keyword 0x00 docID
func makeKeywordKey(collectionID, keyword, docID string) []byte {
	buf := makeKeywordPrefix(collectionID, keyword)
	return append(buf, docID...)
}

func makeKeywordPrefix(collectionID, keyword string) []byte {
	buf := make([]byte, 0, len(documentKeywordPrefix)+len(collectionID)+len(keyword)+2)
	buf = append(buf, documentKeywordPrefix...)
	buf = append(buf, collectionID...)
	buf = append(buf, sep)
	buf = append(buf, normalizeTerm(keyword)...)
	return append(buf, sep)
}

// makeElementKey generates a key for an element scoped by its parent.
// Format: prefix parentID 0x00 elementID(8, BigEndian)
func makeElementKey(parentID string, id core.ID) []byte {
	buf := makeElementParentPrefix(parentID)
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(id))
	return append(buf, raw[:]...)
}

func makeElementParentPrefix(parentID string) []byte {
	buf := make([]byte, 0, len(elementPrefix)+len(parentID)+1+8)
	buf = append(buf, elementPrefix...)
	buf = append(buf, parentID...)
	return append(buf, sep)
}

// makeIdentifierKey generates a composite key for the element identifier index.
// The value is the element's primary key.
// Format: prefix collection 0x00 identifier 0x00 parentID 0x00 elementID(8)
func makeIdentifierKey(collectionID, ident, parentID string, id core.ID) []byte {
	buf := makeIdentifierPrefix(collectionID, ident)
	return append(buf, makeElementKey(parentID, id)[len(elementPrefix):]...)
}

func makeIdentifierPrefix(collectionID, ident string) []byte {
	buf := make([]byte, 0, len(elementIdentPrefix)+len(collectionID)+len(ident)+2)
	buf = append(buf, elementIdentPrefix...)
	buf = append(buf, collectionID...)
	buf = append(buf, sep)
	buf = append(buf, normalizeTerm(ident)...)
	return append(buf, sep)
}
