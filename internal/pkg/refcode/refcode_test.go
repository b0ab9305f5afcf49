package refcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, Length)
		for _, r := range code {
			require.True(t, strings.ContainsRune(charset, r), "unexpected character %q", r)
		}
		seen[code] = true
	}

	// 36^8 codes; 100 draws colliding would point at a broken source.
	require.Greater(t, len(seen), 95)
}
