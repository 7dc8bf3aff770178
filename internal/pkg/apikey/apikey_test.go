package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidKeys(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		key, err := Generate()
		require.NoError(t, err)
		assert.True(t, IsValidFormat(key), key)
		assert.Len(t, key, len(Prefix)+64)
		_, dup := seen[key]
		assert.False(t, dup)
		seen[key] = struct{}{}
	}
}

func TestIsValidFormat(t *testing.T) {
	hex64 := strings.Repeat("0123456789abcdef", 4)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid", Prefix + hex64, true},
		{"wrong prefix", "speedai_test_" + hex64, false},
		{"missing prefix", hex64, false},
		{"too short", Prefix + hex64[:63], false},
		{"too long", Prefix + hex64 + "0", false},
		{"uppercase hex", Prefix + strings.ToUpper(hex64), false},
		{"non hex character", Prefix + hex64[:63] + "g", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFormat(tt.key))
		})
	}
}

func TestHashAndVerify(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(key)
	require.NoError(t, err)
	assert.NotContains(t, hash, key)

	assert.True(t, Verify(key, hash))

	other, err := Generate()
	require.NoError(t, err)
	assert.False(t, Verify(other, hash))
	assert.False(t, Verify(key, ""))
	assert.False(t, Verify("not-a-key", hash))
}

func TestHashRejectsMalformedKey(t *testing.T) {
	_, err := Hash("speedai_live_xyz")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestLookupPrefix(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	p := LookupPrefix(key)
	assert.True(t, strings.HasPrefix(key, p))
	assert.Len(t, p, len(Prefix)+12)
	assert.Equal(t, "short", LookupPrefix("short"))
}
