package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"time"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,13}$`)

// IsValidPhone checks the contact number is a bare or +-prefixed run of
// 10 to 13 digits.
func IsValidPhone(contactNo string) bool {
	return phonePattern.MatchString(contactNo)
}

// IsAdult reports whether someone born on dob is at least 18 years old at
// now, accurate to the day.
func IsAdult(dob, now time.Time) bool {
	cutoff := time.Date(now.Year()-18, now.Month(), now.Day(), 23, 59, 59, 0, dob.Location())
	return !dob.After(cutoff)
}

// GenerateOTPCode returns a random numeric code of the given length.
func GenerateOTPCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
