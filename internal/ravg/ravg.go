// Package ravg implements a fixed-capacity running-average filter used to
// smooth frame intervals for diagnostics.
package ravg

import "errors"

// ErrCapacity is returned by New when the sample buffer cannot be sized.
var ErrCapacity = errors.New("ravg: capacity must be positive")

// Filter keeps the last Cap() samples in a ring and their running sum.
// A nil *Filter passes values through unchanged.
type Filter struct {
	values []int
	index  int
	count  int
	sum    int
}

// New allocates a zeroed filter holding capacity samples.
func New(capacity int) (*Filter, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Filter{values: make([]int, capacity)}, nil
}

// Run inserts value and returns the integer mean of the samples currently
// held. Before warm-up the mean covers only the samples seen so far.
func (f *Filter) Run(value int) int {
	if f == nil || len(f.values) == 0 {
		return value
	}

	f.sum -= f.values[f.index]
	f.values[f.index] = value
	f.sum += value
	f.index = (f.index + 1) % len(f.values)
	if f.count < len(f.values) {
		f.count++
	}
	return f.sum / f.count
}

// Len returns the number of valid samples.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return f.count
}

// Cap returns the filter capacity.
func (f *Filter) Cap() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}
