package app

import (
	"crypto/rand"
	"math/big"
)

// joinCodeAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const joinCodeLength = 6

// NewJoinCode returns a short code participants type to enter a room.
func NewJoinCode() string {
	b := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(b)
}
