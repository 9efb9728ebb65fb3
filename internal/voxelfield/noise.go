package voxelfield

import opensimplex "github.com/ojrac/opensimplex-go"

// layeredNoise sums octaves of simplex noise the way the teacher's
// terrain.NoiseGenerator.fractalNoise sums octaves of value noise
// (internal/terrain/noise.go), but backed by a real simplex generator
// instead of hand-rolled value noise.
type layeredNoise struct {
	noise      opensimplex.Noise
	octaves    int
	lacunarity float64
	persist    float64
}

func newLayeredNoise(seed int64, octaves int, lacunarity, persist float64) *layeredNoise {
	if octaves < 1 {
		octaves = 1
	}
	if lacunarity <= 0 {
		lacunarity = 2.0
	}
	if persist <= 0 {
		persist = 0.5
	}
	return &layeredNoise{
		noise:      opensimplex.New(seed),
		octaves:    octaves,
		lacunarity: lacunarity,
		persist:    persist,
	}
}

// sample2 returns a fractal sum in roughly [-1, 1] at (x, z).
func (l *layeredNoise) sample2(x, z float64) float64 {
	freq := 1.0
	amp := 1.0
	sum := 0.0
	norm := 0.0
	for o := 0; o < l.octaves; o++ {
		sum += amp * l.noise.Eval2(x*freq, z*freq)
		norm += amp
		freq *= l.lacunarity
		amp *= l.persist
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
