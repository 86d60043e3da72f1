// Package mathutils holds small numeric helpers shared across the sketch,
// supernode and streaming-engine packages: generic min/max (as the teacher
// uses them throughout its graph statistics code) plus the discrete-log
// helper the sketch construction needs to size its column/bucket counts.
package mathutils

import (
	"math"
	"math/bits"

	"golang.org/x/exp/constraints"
)

func FloatEquals(a float64, b float64, args ...interface{}) bool {
	if len(args) >= 1 {
		return math.Abs(a-b) < args[0].(float64)
	}
	return math.Abs(a-b) < 0.001
}

func Max[T constraints.Ordered](x, y T) T {
	if x < y {
		return y
	}
	return x
}

func Min[T constraints.Ordered](x, y T) T {
	if y < x {
		return y
	}
	return x
}

// Log2Ceil returns ceil(log2(n)) for n >= 1. Used to size the number of
// sketch columns (num_columns) from the vertex count.
func Log2Ceil(n uint64) uint32 {
	if n <= 1 {
		return 0
	}
	return uint32(bits.Len64(n - 1))
}
