package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const accountNumberLength = 10

// generateAccountNumber draws a random numeral of exactly ten digits.
// The first digit is never zero so the printed form keeps its length.
func generateAccountNumber() (string, error) {
	digits := make([]byte, accountNumberLength)
	for i := range digits {
		limit := int64(10)
		if i == 0 {
			limit = 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(limit))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		d := byte(n.Int64())
		if i == 0 {
			d++
		}
		digits[i] = '0' + d
	}
	return string(digits), nil
}
