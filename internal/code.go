package internal

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeFloor = 100000
	codeSpan  = 900000
)

// NewVerificationCode returns a random six-digit numeric string drawn
// uniformly from [100000, 999999]. Codes never start with zero; the platform
// has always generated them this way and clients depend on the fixed
// six-character width, so the narrowed space is kept as-is.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(codeFloor+n.Int64(), 10), nil
}
