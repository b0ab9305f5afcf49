// Package refcode generates tenant-unique referral codes.
package refcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Length  = 8
	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// MaxAttempts bounds the collision-retry loop during enrollment.
	MaxAttempts = 10
)

// Generate returns a random 8-character uppercase alphanumeric code.
func Generate() (string, error) {
	code := make([]byte, Length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("random int: %w", err)
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}
