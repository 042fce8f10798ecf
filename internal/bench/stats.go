package bench

// Summary reduces a sample series to its mean, minimum and maximum, all
// in milliseconds. An empty series reduces to the zero Summary.
type Summary struct {
	Mean float64 `json:"mean_ms"`
	Min  float64 `json:"min_ms"`
	Max  float64 `json:"max_ms"`
}

func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	sum := 0.0
	lo, hi := samples[0], samples[0]
	for _, s := range samples {
		sum += s
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return Summary{Mean: sum / float64(len(samples)), Min: lo, Max: hi}
}
