// Package voxelfield implements the density-field algebra used to author
// terrain: primitives, combinators, and the material-assigning mosaic that a
// brush applies to the voxel tree.
package voxelfield

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Material identifies the surface material a mosaic paints onto a voxel.
type Material uint16

// NoMaterial marks "no material assigned" — the algebra's equivalent of nil.
const NoMaterial Material = 0

// Field is a pure function of a point in space: how far inside a solid the
// point is (Density), which way the surface points there (Normal), and what
// it's made of (Material). Density is not required to be a true signed
// distance; only its sign and relative ordering between fields are load
// bearing (see Union/Intersection).
type Field interface {
	Density(p r3.Vec) float64
	Normal(p r3.Vec) r3.Vec
	Material(p r3.Vec) Material
}

// Sphere is a solid ball of radius Radius centered at Center.
type Sphere struct {
	Center r3.Vec
	Radius float64
	Mat    Material
}

func (s Sphere) Density(p r3.Vec) float64 {
	return s.Radius - r3.Norm(r3.Sub(p, s.Center))
}

func (s Sphere) Normal(p r3.Vec) r3.Vec {
	d := r3.Sub(p, s.Center)
	if n := r3.Norm(d); n > 1e-9 {
		return r3.Scale(1/n, d)
	}
	return r3.Vec{X: 0, Y: 1, Z: 0}
}

func (s Sphere) Material(p r3.Vec) Material {
	if s.Density(p) >= 0 {
		return s.Mat
	}
	return NoMaterial
}

// Pillar is an infinite-height (along Y) cylinder of radius Radius centered
// on the vertical line through Center.
type Pillar struct {
	Center r3.Vec
	Radius float64
	Mat    Material
}

func (p Pillar) Density(pt r3.Vec) float64 {
	dx := pt.X - p.Center.X
	dz := pt.Z - p.Center.Z
	return p.Radius - r3.Norm(r3.Vec{X: dx, Y: 0, Z: dz})
}

func (p Pillar) Normal(pt r3.Vec) r3.Vec {
	d := r3.Vec{X: pt.X - p.Center.X, Y: 0, Z: pt.Z - p.Center.Z}
	if n := r3.Norm(d); n > 1e-9 {
		return r3.Scale(1/n, d)
	}
	return r3.Vec{X: 1, Y: 0, Z: 0}
}

func (p Pillar) Material(pt r3.Vec) Material {
	if p.Density(pt) >= 0 {
		return p.Mat
	}
	return NoMaterial
}

// Heightmap is a solid half-space below a noise-perturbed surface: base
// height plus layered simplex octaves, matching the fractal-sum shape the
// teacher's terrain generator uses for its own surface height (see
// internal/terrain/noise.go's fractalNoise), generalized here to a field.
type Heightmap struct {
	Base       float64
	Amplitude  float64
	Frequency  float64
	Octaves    int
	Lacunarity float64
	Persist    float64
	Mat        Material
	noise      *layeredNoise
}

// NewHeightmap builds a Heightmap field seeded deterministically from seed.
func NewHeightmap(seed int64, base, amplitude, frequency float64, octaves int, lacunarity, persist float64, mat Material) *Heightmap {
	return &Heightmap{
		Base:       base,
		Amplitude:  amplitude,
		Frequency:  frequency,
		Octaves:    octaves,
		Lacunarity: lacunarity,
		Persist:    persist,
		Mat:        mat,
		noise:      newLayeredNoise(seed, octaves, lacunarity, persist),
	}
}

func (h *Heightmap) surfaceHeight(x, z float64) float64 {
	return h.Base + h.Amplitude*h.noise.sample2(x*h.Frequency, z*h.Frequency)
}

func (h *Heightmap) Density(p r3.Vec) float64 {
	return h.surfaceHeight(p.X, p.Z) - p.Y
}

func (h *Heightmap) Normal(p r3.Vec) r3.Vec {
	const eps = 0.5
	hx0 := h.surfaceHeight(p.X-eps, p.Z)
	hx1 := h.surfaceHeight(p.X+eps, p.Z)
	hz0 := h.surfaceHeight(p.X, p.Z-eps)
	hz1 := h.surfaceHeight(p.X, p.Z+eps)
	grad := r3.Vec{X: (hx0 - hx1) / (2 * eps), Y: 1, Z: (hz0 - hz1) / (2 * eps)}
	if n := r3.Norm(grad); n > 1e-9 {
		return r3.Scale(1/n, grad)
	}
	return r3.Vec{X: 0, Y: 1, Z: 0}
}

func (h *Heightmap) Material(p r3.Vec) Material {
	if h.Density(p) >= 0 {
		return h.Mat
	}
	return NoMaterial
}

// Translate shifts a field by Offset.
type Translate struct {
	Field  Field
	Offset r3.Vec
}

func (t Translate) untranslate(p r3.Vec) r3.Vec { return r3.Sub(p, t.Offset) }

func (t Translate) Density(p r3.Vec) float64  { return t.Field.Density(t.untranslate(p)) }
func (t Translate) Normal(p r3.Vec) r3.Vec    { return t.Field.Normal(t.untranslate(p)) }
func (t Translate) Material(p r3.Vec) Material { return t.Field.Material(t.untranslate(p)) }

// Union is the max-density combination of its components: density is the
// maximum across components, normal is the normal of whichever component
// attained that maximum, material is the first non-nil material found
// scanning components in order. Mirrors
// original_source/server/src/voxel/field/union.rs.
type Union struct {
	Components []Field
}

func (u Union) Density(p r3.Vec) float64 {
	best := negInf
	for _, c := range u.Components {
		if d := c.Density(p); d > best {
			best = d
		}
	}
	return best
}

func (u Union) Normal(p r3.Vec) r3.Vec {
	best := negInf
	var normal r3.Vec
	for _, c := range u.Components {
		if d := c.Density(p); d > best {
			best = d
			normal = c.Normal(p)
		}
	}
	return normal
}

func (u Union) Material(p r3.Vec) Material {
	for _, c := range u.Components {
		if m := c.Material(p); m != NoMaterial {
			return m
		}
	}
	return NoMaterial
}

// Intersection is the min-density combination of its components: density is
// the minimum across components, normal is the normal of whichever component
// attained that minimum, material is nil if any component is nil there,
// otherwise the last non-nil material scanned. Mirrors
// original_source/server/src/voxel/field/intersection.rs, except normal uses
// an arg-min fold (the spec's explicit algebra) rather than the original
// source's apparently inverted comparison.
type Intersection struct {
	Components []Field
}

func (i Intersection) Density(p r3.Vec) float64 {
	best := posInf
	for _, c := range i.Components {
		if d := c.Density(p); d < best {
			best = d
		}
	}
	return best
}

func (i Intersection) Normal(p r3.Vec) r3.Vec {
	best := posInf
	var normal r3.Vec
	for _, c := range i.Components {
		if d := c.Density(p); d < best {
			best = d
			normal = c.Normal(p)
		}
	}
	return normal
}

func (i Intersection) Material(p r3.Vec) Material {
	result := NoMaterial
	for _, c := range i.Components {
		m := c.Material(p)
		if m == NoMaterial {
			return NoMaterial
		}
		result = m
	}
	return result
}

const (
	posInf = float64(1) << 62
	negInf = -posInf
)

// Mosaic wraps the field a brush carries when rewriting the voxel tree
// (§4.b); the material it paints is that field's own Material.
type Mosaic struct {
	Field Field
}

func (m Mosaic) Density(p r3.Vec) float64  { return m.Field.Density(p) }
func (m Mosaic) Normal(p r3.Vec) r3.Vec    { return m.Field.Normal(p) }
func (m Mosaic) Material(p r3.Vec) Material { return m.Field.Material(p) }
