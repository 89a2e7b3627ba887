package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("stratum container payload "), 64)

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			require.NoError(t, err)
			assert.Equal(t, algo, c.Algorithm())

			compressed, err := c.Compress(payload)
			require.NoError(t, err)
			out, err := c.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestCompressionActuallyShrinks(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 1024)

	for _, algo := range []Algorithm{Gzip, Snappy, LZ4, Zstd} {
		c, err := NewCompressor(&Config{Algorithm: algo, Level: Best})
		require.NoError(t, err)
		compressed, err := c.Compress(payload)
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payload), string(algo))
	}
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: Algorithm("brotli")})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Zstd, cfg.Algorithm)
	assert.Equal(t, Default, cfg.Level)
}

func TestEmptyInput(t *testing.T) {
	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd} {
		c, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
		require.NoError(t, err)
		compressed, err := c.Compress(nil)
		require.NoError(t, err)
		out, err := c.Decompress(compressed)
		require.NoError(t, err)
		assert.Empty(t, out, string(algo))
	}
}
