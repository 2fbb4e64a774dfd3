// Package window provides a fixed-capacity sliding buffer with the rolling
// statistics used by the scoring pipeline. NaN marks a missing (NULL) value
// and is skipped by every aggregate, matching SQL window aggregates.
package window

import "math"

// Size is the trailing window length used throughout the pipeline.
const Size = 20

// Ring is a fixed-capacity FIFO of float64 values. Once full, each Push
// evicts the oldest value. The zero value is not usable; use NewRing.
type Ring struct {
	buf   []float64
	start int
	n     int
}

// NewRing creates an empty ring holding at most capacity values.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *Ring) Push(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of values held, including NaN.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Reset empties the ring.
func (r *Ring) Reset() {
	r.start = 0
	r.n = 0
}

// At returns the i-th value counted from the oldest (0) to the newest (Len-1).
func (r *Ring) At(i int) float64 {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Back returns the value k steps behind the newest (Back(0) is the newest).
// ok is false when fewer than k+1 values are held.
func (r *Ring) Back(k int) (float64, bool) {
	if k < 0 || k >= r.n {
		return math.NaN(), false
	}
	return r.At(r.n - 1 - k), true
}

// Values returns the held values, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.n)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Count returns the number of non-NaN values.
func (r *Ring) Count() int {
	c := 0
	for i := 0; i < r.n; i++ {
		if !math.IsNaN(r.At(i)) {
			c++
		}
	}
	return c
}

// Sum returns the sum of non-NaN values, or NaN when there are none.
func (r *Ring) Sum() float64 {
	sum, c := 0.0, 0
	for i := 0; i < r.n; i++ {
		v := r.At(i)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		c++
	}
	if c == 0 {
		return math.NaN()
	}
	return sum
}

// Mean returns the mean of non-NaN values, or NaN when there are none.
func (r *Ring) Mean() float64 {
	c := r.Count()
	if c == 0 {
		return math.NaN()
	}
	return r.Sum() / float64(c)
}

// SampleStd returns the sample standard deviation (n-1 denominator) of
// non-NaN values, or NaN with fewer than two of them.
func (r *Ring) SampleStd() float64 {
	c := r.Count()
	if c < 2 {
		return math.NaN()
	}
	mean := r.Mean()
	ss := 0.0
	for i := 0; i < r.n; i++ {
		v := r.At(i)
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(c-1))
}

// Max returns the largest non-NaN value, or NaN when there are none.
func (r *Ring) Max() float64 {
	m := math.NaN()
	for i := 0; i < r.n; i++ {
		v := r.At(i)
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest non-NaN value, or NaN when there are none.
func (r *Ring) Min() float64 {
	m := math.NaN()
	for i := 0; i < r.n; i++ {
		v := r.At(i)
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v < m {
			m = v
		}
	}
	return m
}

// Ptr converts a possibly-NaN value to a nullable pointer.
func Ptr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Val converts a nullable pointer to a possibly-NaN value.
func Val(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
