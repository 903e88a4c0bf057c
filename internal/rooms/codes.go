package rooms

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Alphabet excludes ambiguous characters: 0, O, 1, I, L
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 4

func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateID builds a room id from the creation time in microseconds and a
// random code, e.g. "1760451000000000-K7QM". The time prefix keeps ids from
// the same host ordered; the code separates rooms created in the same tick
// on different hosts.
func GenerateID(now time.Time) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", fmt.Errorf("generating room code: %w", err)
	}
	return fmt.Sprintf("%d-%s", now.UnixMicro(), code), nil
}
