package pairing

import "testing"

func TestNonDirectionalRoundTrip(t *testing.T) {
	const n = 200
	for i := uint32(0); i < n; i++ {
		for j := i + 1; j < n; j++ {
			idx := NonDirectional(i, j)
			gi, gj := InvertNonDirectional(idx)
			if gi != i || gj != j {
				t.Fatalf("round trip mismatch for (%d,%d): got (%d,%d) via idx %d", i, j, gi, gj, idx)
			}
		}
	}
}

func TestNonDirectionalOrientationIndependent(t *testing.T) {
	if NonDirectional(3, 7) != NonDirectional(7, 3) {
		t.Fatal("pairing should not depend on argument order")
	}
}

func TestNonDirectionalInjective(t *testing.T) {
	const n = 64
	seen := make(map[uint64]struct{})
	for i := uint32(0); i < n; i++ {
		for j := i + 1; j < n; j++ {
			idx := NonDirectional(i, j)
			if _, dup := seen[idx]; dup {
				t.Fatalf("collision at (%d,%d) -> %d", i, j, idx)
			}
			seen[idx] = struct{}{}
		}
	}
}

func TestConcatRoundTrip(t *testing.T) {
	const n = 100
	for i := uint32(0); i < n; i++ {
		for j := i + 1; j < n; j++ {
			idx := Concat(i, j)
			gi, gj := InvertConcat(idx)
			if gi != i || gj != j {
				t.Fatalf("concat round trip mismatch for (%d,%d): got (%d,%d)", i, j, gi, gj)
			}
		}
	}
}

func TestVectorLength(t *testing.T) {
	if got := VectorLength(5); got != 10 {
		t.Fatalf("VectorLength(5) = %d, want 10", got)
	}
}
