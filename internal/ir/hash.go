package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed names.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainQuery    = "doclink/query/v1"
	DomainDocument = "doclink/document/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryID computes the content-addressed name of a query definition given
// its canonical object form. Two definitions selecting the same documents
// the same way share a name, and therefore a slot in the query table.
func QueryID(definition IRObject) (string, error) {
	canonical, err := MarshalCanonical(definition)
	if err != nil {
		return "", fmt.Errorf("QueryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

// DocumentHash computes a content hash of a document, used by the snapshot
// to skip rewriting unchanged rows.
func DocumentHash(doc Document) (string, error) {
	canonical, err := MarshalCanonical(doc.Object())
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustQueryID is like QueryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustQueryID(definition IRObject) string {
	id, err := QueryID(definition)
	if err != nil {
		panic(err)
	}
	return id
}
