package calc

import (
	"errors"
	"strings"
)

// Factorial computes n! and rejects negative input.
func Factorial(n int) (int, error) {
	if n < 0 {
		return 0, errors.New("negative input")
	}
	result := 1
	for i := 2; i <= n; i++ {
		result *= i
	}
	return result, nil
}

// Shout upper-cases text.
func Shout(text string) string {
	return strings.ToUpper(text) + "!"
}
