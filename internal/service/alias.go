package service

import (
	"crypto/rand"
	"fmt"
)

const (
	aliasLength = 6
	// aliasAlphabet has exactly 64 symbols so a random byte maps without bias.
	aliasAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	// maxAliasAttempts bounds retries after unique-constraint collisions.
	maxAliasAttempts = 5
)

// GenerateAlias returns a random URL-safe alias of aliasLength characters.
func GenerateAlias() (string, error) {
	buf := make([]byte, aliasLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = aliasAlphabet[b&63]
	}
	return string(buf), nil
}
