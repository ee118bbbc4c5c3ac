package calc

func Draft() int { return 0 }
