package shortid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	for _, n := range []int{1, 6, 12} {
		s := Generate(n)
		assert.Len(t, s, n)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q", r)
		}
	}
	assert.Len(t, Generate(0), DefaultLength)
}

func TestGenerateSpread(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		seen[Generate(DefaultLength)] = struct{}{}
	}
	// 62^6 candidates; a thousand draws colliding more than a couple of times means the source is broken.
	assert.Greater(t, len(seen), 995)
}

func TestValidCustom(t *testing.T) {
	valid := []string{"a", "promo-2024", "My_Link", strings.Repeat("x", 64)}
	invalid := []string{"", "has space", "slash/inside", "dots.com", "ümlaut", strings.Repeat("x", 65)}

	for _, s := range valid {
		assert.True(t, ValidCustom(s), s)
	}
	for _, s := range invalid {
		assert.False(t, ValidCustom(s), s)
	}
}
