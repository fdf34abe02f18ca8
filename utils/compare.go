package utils

// MinInt return minimum between a & b.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxInt return maximum between a & b.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
