package htlc

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildScriptDeterministic(t *testing.T) {
	hashA := bytes.Repeat([]byte{0}, 19)
	hashA = append(hashA, 1)
	hashB := bytes.Repeat([]byte{0}, 19)
	hashB = append(hashB, 2)
	secret := bytes.Repeat([]byte{0}, 32)
	secretHash := sha256.Sum256(secret)

	s1, err := BuildScript(hashA, hashB, 1700000000, secretHash[:], 32)
	require.NoError(t, err)
	s2, err := BuildScript(hashA, hashB, 1700000000, secretHash[:], 32)
	require.NoError(t, err)
	require.Equal(t, s1, s2, "BuildScript must be deterministic")
}

func TestBuildScriptCanonicalExample(t *testing.T) {
	hashA := bytes.Repeat([]byte{0}, 19)
	hashA = append(hashA, 1)
	hashB := bytes.Repeat([]byte{0}, 19)
	hashB = append(hashB, 2)
	secret := bytes.Repeat([]byte{0}, 32)
	secretHash := sha256.Sum256(secret)

	script, err := BuildScript(hashA, hashB, 1700000000, secretHash[:], 32)
	require.NoError(t, err)

	wantPrefix := []byte{
		0x63,             // OP_IF
		0x82,             // OP_SIZE
		0x01, 0x20,       // push 1 byte: 0x20 (32)
		0x88,             // OP_EQUALVERIFY
		0xa8,             // OP_SHA256
		0x20,             // push 32 bytes
	}
	require.True(t, bytes.HasPrefix(script, wantPrefix), "unexpected script prefix: %x", script)

	wantSuffix := []byte{0x68, 0x88, 0xac} // OP_ENDIF OP_EQUALVERIFY OP_CHECKSIG
	require.True(t, bytes.HasSuffix(script, wantSuffix), "unexpected script suffix: %x", script)
}

func TestBuildScriptRejectsOversizedArgs(t *testing.T) {
	hashA := make([]byte, 20)
	hashB := make([]byte, 20)
	secretHash := make([]byte, 32)

	_, err := BuildScript(hashA, hashB, maxScriptNum+1, secretHash, 32)
	require.Error(t, err)

	_, err = BuildScript(hashA, hashB, 1700000000, secretHash, maxScriptNum+1)
	require.Error(t, err)
}

func TestBuildScriptRejectsBadHashLengths(t *testing.T) {
	good20 := make([]byte, 20)
	good32 := make([]byte, 32)

	_, err := BuildScript(make([]byte, 19), good20, 1, good32, 32)
	require.Error(t, err)

	_, err = BuildScript(good20, make([]byte, 21), 1, good32, 32)
	require.Error(t, err)

	_, err = BuildScript(good20, good20, 1, make([]byte, 31), 32)
	require.Error(t, err)
}
