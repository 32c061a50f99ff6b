// internal/session/ids.go
package session

import (
	"crypto/rand"
	"math/big"
)

const gameIDCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// gameIDLength keeps codes short enough to type.
const gameIDLength = 6

// NewGameID returns a random join code.
func NewGameID() (string, error) {
	code := make([]byte, gameIDLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(gameIDCharset))))
		if err != nil {
			return "", err
		}
		code[i] = gameIDCharset[num.Int64()]
	}
	return string(code), nil
}
