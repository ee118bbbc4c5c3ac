package calc

import "errors"

// Calculator does arithmetic with a fixed precision.
type Calculator struct {
	Precision int `default:"2"`
}

// Add returns the sum of a and b.
func (c Calculator) Add(a, b int) int {
	return a + b
}

// Double does not use its receiver.
func (Calculator) Double(x float64) float64 {
	return x * 2
}

// Sum adds any number of values.
func (*Calculator) Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// Scientific returns a high precision calculator.
func Scientific(precision int) *Calculator {
	return &Calculator{Precision: precision}
}

// Add returns a + b.
func Add(a int, b int) int {
	return a + b
}

// Divide divides a by b.
func Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

// Explode always panics.
func Explode(message string) string {
	panic(message)
}

func helper() int { return 1 }
