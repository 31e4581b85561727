// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Prefixes in use.
const (
	PrefixAssessment = "asm_"
	PrefixRequest    = "req_"
)

// WithPrefix returns prefix followed by 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Assessment returns a new assessment id.
func Assessment() string {
	return WithPrefix(PrefixAssessment)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
