package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the suite fast; they are encoded in the hash
// like any others.
func testHasher() *Hasher {
	return &Hasher{Memory: 64, Time: 1, Threads: 1, KeyLen: 32}
}

func TestHashVerify(t *testing.T) {
	h := testHasher()
	encoded, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))

	ok, err := h.Verify(encoded, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(encoded, "hunter3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := testHasher()
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyUsesEncodedParameters(t *testing.T) {
	encoded, err := testHasher().Hash("pw")
	require.NoError(t, err)

	// A hasher configured differently still verifies older hashes.
	ok, err := NewHasher().Verify(encoded, "pw")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformed(t *testing.T) {
	h := testHasher()
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA$",
	} {
		_, err := h.Verify(encoded, "pw")
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(SaltLength)
	require.NoError(t, err)
	assert.Len(t, s, SaltLength)
	assert.Regexp(t, `^[A-Za-z0-9]+$`, s)
}
