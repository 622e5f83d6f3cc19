// Package integrity provides tamper-evident hashing and Merkle tree
// construction for the audit log. All functions are pure and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Hash version prefix. Length-prefixed encoding avoids delimiter collisions
// when freeform detail payloads contain separator characters.
const hashV1Prefix = "v1:"

// ComputeEventHash produces a versioned SHA-256 hex digest over the
// canonical audit event fields. detailsJSON must be the exact bytes stored
// in the sink so recomputation matches byte-for-byte.
func ComputeEventHash(id uuid.UUID, actor, action string, detailsJSON []byte, createdAt time.Time) string {
	h := sha256.New()
	writeField := func(b []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}
	writeField([]byte(id.String()))
	writeField([]byte(actor))
	writeField([]byte(action))
	writeField(detailsJSON)
	writeField([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyEventHash checks whether a stored hash matches the recomputed hash.
func VerifyEventHash(stored string, id uuid.UUID, actor, action string, detailsJSON []byte, createdAt time.Time) bool {
	if !strings.HasPrefix(stored, hashV1Prefix) {
		return false
	}
	return stored == ComputeEventHash(id, actor, action, detailsJSON, createdAt)
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string. The 0x01
// prefix is a domain separator for internal Merkle nodes (per RFC 6962) so
// internal hashes can never collide with leaf content hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root. Leaves must be sorted lexicographically by the caller for
// determinism. Empty input yields an empty root; a single leaf is its own
// root. Odd-length levels hash the last node with itself for structural
// binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
