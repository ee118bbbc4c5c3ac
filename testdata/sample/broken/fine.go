package broken

// Fine parses even though its sibling does not.
func Fine() int {
	return 1
}
