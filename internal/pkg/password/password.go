// Package password hashes and verifies transaction PINs.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const cost = 12 // bcrypt cost factor

var ErrInvalidPIN = errors.New("pin must be exactly 4 digits")

// HashPIN hashes a transaction PIN using bcrypt. The PIN must be exactly
// four digits.
func HashPIN(pin string) (string, error) {
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	return string(bytes), err
}

// VerifyPIN compares a candidate PIN with a stored hash. bcrypt's comparison
// is constant-time over the hash.
func VerifyPIN(pin, hash string) bool {
	if !validPIN(pin) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
