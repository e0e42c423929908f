package domain

import (
	"math/rand"
	"strings"
)

// Join codes are 6 uppercase alphanumerics, compared case-insensitively.
const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewJoinCode generates a random join code. Callers are responsible for
// retrying on collision with a non-finished room.
func NewJoinCode(rnd *rand.Rand) string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[rnd.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode maps user input to the stored join-code form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
