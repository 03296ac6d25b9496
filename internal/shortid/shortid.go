package shortid

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultLength = 6
)

var customPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a random slug drawn uniformly from Alphabet.
func Generate(length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic("shortid: crypto/rand unavailable: " + err.Error())
		}
		sb.WriteByte(Alphabet[n.Int64()])
	}
	return sb.String()
}

// ValidCustom reports whether a caller-chosen alias is usable as a slug.
func ValidCustom(slug string) bool {
	return customPattern.MatchString(slug)
}
