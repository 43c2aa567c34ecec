package fu

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

func Mse(a, b []float64) float64 {
	var c float64
	for i, x := range a {
		q := x - b[i]
		c += q * q
	}
	return c / float64(len(a))
}

/*
Indmaxd returns index of the first maximal value or -1 if slice is empty
*/
func Indmaxd(a []float64) int {
	if len(a) == 0 {
		return -1
	}
	return floats.MaxIdx(a)
}

/*
Minmaxd returns minimal and maximal values of non-empty slice
*/
func Minmaxd(a []float64) (float64, float64) {
	return floats.Min(a), floats.Max(a)
}

/*
Absmaxd returns the maximal absolute value, 0 for empty slice
*/
func Absmaxd(a []float64) float64 {
	var r float64
	for _, x := range a {
		r = math.Max(r, math.Abs(x))
	}
	return r
}

/*
Linspace returns n evenly spaced values from lo to hi, both ends included exactly
*/
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	r := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range r {
		r[i] = lo + float64(i)*step
	}
	r[n-1] = hi
	return r
}

/*
Nearest returns index of the center closest to x, the lowest index wins a tie
*/
func Nearest(centers []float64, x float64) int {
	j := -1
	d := math.Inf(1)
	for i, c := range centers {
		if q := math.Abs(x - c); q < d {
			j, d = i, q
		}
	}
	return j
}
