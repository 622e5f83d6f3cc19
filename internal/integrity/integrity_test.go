package integrity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeEventHash_Deterministic(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	details := []byte(`{"query_id":"q1","timestamp":"2026-03-14T09:26:53Z"}`)

	h1 := ComputeEventHash(id, "alice", "AUTHZ_ALLOW", details, at)
	h2 := ComputeEventHash(id, "alice", "AUTHZ_ALLOW", details, at)
	assert.Equal(t, h1, h2)
	assert.True(t, VerifyEventHash(h1, id, "alice", "AUTHZ_ALLOW", details, at))
}

func TestComputeEventHash_FieldBoundaries(t *testing.T) {
	// Length prefixing must keep "ab"+"c" distinct from "a"+"bc".
	id := uuid.New()
	at := time.Now()
	h1 := ComputeEventHash(id, "ab", "c", nil, at)
	h2 := ComputeEventHash(id, "a", "bc", nil, at)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyEventHash_DetectsTamper(t *testing.T) {
	id := uuid.New()
	at := time.Now()
	details := []byte(`{"query_id":"q1"}`)

	h := ComputeEventHash(id, "alice", "AUTHZ_DENY", details, at)
	assert.False(t, VerifyEventHash(h, id, "alice", "AUTHZ_ALLOW", details, at))
	assert.False(t, VerifyEventHash(h, id, "mallory", "AUTHZ_DENY", details, at))
	assert.False(t, VerifyEventHash("deadbeef", id, "alice", "AUTHZ_DENY", details, at))
}

func TestBuildMerkleRoot_EdgeCases(t *testing.T) {
	assert.Equal(t, "", BuildMerkleRoot(nil))
	assert.Equal(t, "leaf", BuildMerkleRoot([]string{"leaf"}))
}

func TestBuildMerkleRoot_Deterministic(t *testing.T) {
	leaves := []string{"a", "b", "c", "d", "e"}
	r1 := BuildMerkleRoot(leaves)
	r2 := BuildMerkleRoot(leaves)
	assert.Equal(t, r1, r2)
	assert.NotEmpty(t, r1)

	// Any leaf change must change the root.
	tampered := []string{"a", "b", "x", "d", "e"}
	assert.NotEqual(t, r1, BuildMerkleRoot(tampered))
}

func TestBuildMerkleRoot_OddLeafBinding(t *testing.T) {
	// An odd trailing leaf is hashed with itself, so the root differs from
	// the even tree that simply drops it.
	even := BuildMerkleRoot([]string{"a", "b"})
	odd := BuildMerkleRoot([]string{"a", "b", "c"})
	assert.NotEqual(t, even, odd)
}
