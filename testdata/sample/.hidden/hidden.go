package hidden

func Hidden() int { return 1 }
