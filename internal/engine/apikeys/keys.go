// Package apikeys issues API keys and authenticates requests that present them.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	DefaultPrefix = "pk_live_"

	tokenBytes       = 32
	displayPrefixLen = 12
)

// GenerateToken returns prefix followed by 32 random bytes in hex.
func GenerateToken(prefix string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// HashToken is the lookup key stored for a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix is the part of a token safe to show in listings.
func DisplayPrefix(token string) string {
	if len(token) <= displayPrefixLen {
		return token
	}
	return token[:displayPrefixLen]
}
