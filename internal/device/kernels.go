package device

// Stage math. Each stage is a pure elementwise float32 map:
// out[i] = Transform(st, in[i], i, scale). The transform iterates a
// bounded logistic map with a stage-specific coefficient, using only
// multiplies and adds so conforming float32 implementations (Go and
// WGSL alike) produce bit-identical results. Stage 1 ignores its input
// and seeds from the element index.

// Logistic coefficients per stage, indexed by Stage. All below 4.0 so
// iterates stay inside (0, 1).
var stageRate = [5]float32{0, 3.75, 3.61, 3.41, 3.99}

const (
	seedMul = 2654435761 // Knuth multiplicative hash
	seedAdd = 0x9E3779B9
)

// Seed derives stage 1's input value for element i: an exact float32 in
// [0, 1) from a 24-bit integer hash.
func Seed(i int) float32 {
	h := uint32(i)*seedMul + seedAdd
	return float32(h>>8) / float32(1<<24)
}

// Transform applies stage st to one element. scale values below 1 behave
// exactly like 1.
func Transform(st Stage, x float32, i, scale int) float32 {
	if scale < 1 {
		scale = 1
	}
	if st == Stage1 {
		x = Seed(i)
	}
	r := stageRate[st]
	for range scale {
		x = r * x * (1 - x)
	}
	return x
}
