package race

import "github.com/jloh02/anchored-amazing-race/internal/models"

// The loop has n+1 positions, 0..n, where n is the configured number of
// locations.

// StartIndex is where a group travelling in direction d begins.
func StartIndex(d models.Direction, n int) int {
	switch d {
	case models.DirectionA0:
		return 1
	case models.DirectionB0:
		return n
	default:
		return 0
	}
}

// StepOf is +1 for the forward directions and -1 otherwise.
func StepOf(d models.Direction) int {
	if d.Forward() {
		return 1
	}
	return -1
}

// Wrap clamps an index that fell off either end of the loop.
func Wrap(index, n int) int {
	if index < 0 {
		return n
	}
	if index > n {
		return 0
	}
	return index
}

// Next returns the index after current and whether it closes the loop.
func Next(d models.Direction, current, n int) (int, bool) {
	idx := Wrap(current+StepOf(d), n)
	return idx, idx == StartIndex(d, n)
}
