package app

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns a 32-char hex identifier for rooms, questions and players.
func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
