package people

import "fmt"

// Person is someone with a name and an age.
type Person struct {
	Name string
	Age  int
}

// NewPerson builds a Person.
func NewPerson(name string, age int) *Person {
	return &Person{Name: name, Age: age}
}

// Greet greets the person.
func (p *Person) Greet(greeting string) string {
	return fmt.Sprintf("%s, %s!", greeting, p.Name)
}

// Birthday makes the person one year older.
func (p *Person) Birthday() int {
	p.Age++
	return p.Age
}

// GetPersonInfo describes a person.
func GetPersonInfo(person *Person) string {
	return fmt.Sprintf("%s is %d years old", person.Name, person.Age)
}

func describe(p *Person) string { return p.Name }

// Introduce takes a person by value.
func Introduce(person Person) string {
	return "This is " + person.Name
}

// Roster counts the people given.
func Roster(people []Person) int {
	return len(people)
}
