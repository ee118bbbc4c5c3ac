package people

import "strings"

// Address has no constructor function and is built from its fields.
type Address struct {
	Street  string
	City    string `default:"Springfield"`
	Zip     int    `default:"12345"`
	private string
}

// Label renders the address on one line.
func (a Address) Label() string {
	return strings.Join([]string{a.Street, a.City}, ", ")
}
