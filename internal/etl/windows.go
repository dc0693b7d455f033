package etl

import (
	"iter"
	"math"
	"strconv"
)

// Window is an inclusive id range handled by one adapter call of a range ETL.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Params returns the window bounds as adapter filters: [start, end].
func (w Window) Params() []string {
	return []string{strconv.Itoa(w.Start), strconv.Itoa(w.End)}
}

// Windows yields (1, step), (1+step, 2*step), ... for every start below max,
// in ascending order. Nothing is yielded when max <= 1 or step < 1.
func Windows(max, step int) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if step < 1 {
			return
		}
		for start := 1; start < max; start += step {
			end := start + step - 1
			if end < start { // overflow
				end = math.MaxInt
			}
			if !yield(Window{Start: start, End: end}) {
				return
			}
			if start > math.MaxInt-step {
				return
			}
		}
	}
}
