// Package barcode validates retail product codes scanned at the till.
package barcode

import (
	"errors"
	"fmt"
)

var ErrInvalidEAN13 = errors.New("invalid EAN-13 barcode")

// ValidEAN13 reports whether code is 13 ASCII digits whose last digit is the
// mod-10 check digit over the first twelve (weights 1 and 3 alternating).
func ValidEAN13(code string) bool {
	if len(code) != 13 || code[12] < '0' || code[12] > '9' {
		return false
	}
	check, err := CheckDigit(code[:12])
	if err != nil {
		return false
	}
	return check == int(code[12]-'0')
}

func Validate(code string) error {
	if !ValidEAN13(code) {
		return fmt.Errorf("%w: %q", ErrInvalidEAN13, code)
	}
	return nil
}

// CheckDigit computes the check digit for a 12-digit prefix.
func CheckDigit(prefix string) (int, error) {
	if len(prefix) != 12 {
		return 0, fmt.Errorf("%w: prefix must be 12 digits", ErrInvalidEAN13)
	}
	sum := 0
	for i := 0; i < 12; i++ {
		c := prefix[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: prefix must be 12 digits", ErrInvalidEAN13)
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10, nil
}
