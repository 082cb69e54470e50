// Package cop projects four corner weights onto a normalised centre of
// pressure.
//
// Corners are labelled looking down on the platform:
//
//	A (top-left)     B (top-right)
//	D (bottom-left)  C (bottom-right)
//
// X grows toward the B/C edge and Y grows toward the C/D edge.
package cop

import "fmt"

// Coordinate is a centre of pressure with both axes in [-1, 1].
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Project returns the centre of pressure for the corner weights. It returns
// the origin when the total load is not positive.
func Project(wa, wb, wc, wd float64) Coordinate {
	total := wa + wb + wc + wd
	if total <= 0 {
		return Coordinate{}
	}
	return Coordinate{
		X: ((wb + wc) - (wa + wd)) / total,
		Y: ((wc + wd) - (wa + wb)) / total,
	}
}

// ProjectWeights is Project over an A..D array.
func ProjectWeights(w [4]float64) Coordinate {
	return Project(w[0], w[1], w[2], w[3])
}

// String formats the coordinate the way it is streamed: "(x, y)" with three
// decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", c.X, c.Y)
}
