package broken

func Broken(a int {
	return a
}
