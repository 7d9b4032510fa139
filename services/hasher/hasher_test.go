package hasher

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_KnownVector(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(nil))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Hash([]byte("abc")))
}

func TestHashReaderAndFile(t *testing.T) {
	data := []byte("%PDF-1.4 invoice body")

	sum, n, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, Hash(data), sum)

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	sum, err = HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, Hash(data), sum)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("abcDEF", "ABCdef"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "abcd"))
}

func TestHashProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("hash is deterministic and 64 lowercase hex chars", prop.ForAll(
		func(s string) bool {
			a, b := Hash([]byte(s)), Hash([]byte(s))
			return a == b && len(a) == 64 && strings.ToLower(a) == a
		},
		gen.AnyString(),
	))

	properties.Property("stream and buffer hashes agree", prop.ForAll(
		func(s string) bool {
			sum, _, err := HashReader(strings.NewReader(s))
			return err == nil && sum == Hash([]byte(s))
		},
		gen.AnyString(),
	))

	properties.Property("appending a byte changes the hash", prop.ForAll(
		func(s string) bool {
			return Hash([]byte(s)) != Hash([]byte(s+"x"))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
