package mathutil

import (
	"math"
	"math/rand"
)

// GammaSample draws from Gamma(shape, 1) using Marsaglia-Tsang squeeze
// rejection, with the Ahrens-Dieter boost for shape < 1.
func GammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return GammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// BetaSample draws from Beta(alpha, beta) via two gamma draws.
func BetaSample(rng *rand.Rand, alpha, beta float64) float64 {
	x := GammaSample(rng, alpha)
	y := GammaSample(rng, beta)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// TriangularSample draws from Triangular(min, mode, max) by inverse CDF.
func TriangularSample(rng *rand.Rand, min, mode, max float64) float64 {
	if max == min {
		return min
	}
	u := rng.Float64()
	cut := (mode - min) / (max - min)
	if u < cut {
		return min + math.Sqrt(u*(max-min)*(mode-min))
	}
	return max - math.Sqrt((1-u)*(max-min)*(max-mode))
}
