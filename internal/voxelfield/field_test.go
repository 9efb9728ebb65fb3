package voxelfield

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSphereDensitySign(t *testing.T) {
	s := Sphere{Center: r3.Vec{}, Radius: 2, Mat: Material(1)}
	require.Greater(t, s.Density(r3.Vec{X: 1}), 0.0)
	require.Less(t, s.Density(r3.Vec{X: 3}), 0.0)
	require.Equal(t, Material(1), s.Material(r3.Vec{X: 1}))
	require.Equal(t, NoMaterial, s.Material(r3.Vec{X: 3}))
}

func TestUnionTakesMaxDensityAndItsNormal(t *testing.T) {
	a := Sphere{Center: r3.Vec{X: -5}, Radius: 1, Mat: Material(1)}
	b := Sphere{Center: r3.Vec{X: 5}, Radius: 3, Mat: Material(2)}
	u := Union{Components: []Field{a, b}}

	p := r3.Vec{X: 5}
	require.InDelta(t, b.Density(p), u.Density(p), 1e-9)
	require.Equal(t, b.Normal(p), u.Normal(p))
	require.Equal(t, Material(2), u.Material(p))
}

func TestUnionMaterialFirstNonNil(t *testing.T) {
	a := Sphere{Center: r3.Vec{X: 100}, Radius: 1, Mat: Material(1)} // far away, density<0 here
	b := Sphere{Center: r3.Vec{}, Radius: 5, Mat: Material(2)}
	u := Union{Components: []Field{a, b}}
	require.Equal(t, Material(2), u.Material(r3.Vec{}))
}

func TestIntersectionTakesMinDensity(t *testing.T) {
	a := Sphere{Center: r3.Vec{}, Radius: 5, Mat: Material(1)}
	b := Sphere{Center: r3.Vec{}, Radius: 2, Mat: Material(2)}
	i := Intersection{Components: []Field{a, b}}

	p := r3.Vec{X: 1}
	require.InDelta(t, b.Density(p), i.Density(p), 1e-9)
}

func TestIntersectionMaterialNoneIfAnyNone(t *testing.T) {
	a := Sphere{Center: r3.Vec{}, Radius: 5, Mat: Material(1)}
	b := Sphere{Center: r3.Vec{X: 100}, Radius: 1, Mat: Material(2)}
	i := Intersection{Components: []Field{a, b}}
	require.Equal(t, NoMaterial, i.Material(r3.Vec{}))
}

func TestTranslateShiftsField(t *testing.T) {
	s := Sphere{Center: r3.Vec{}, Radius: 2, Mat: Material(1)}
	tr := Translate{Field: s, Offset: r3.Vec{X: 10}}
	require.InDelta(t, s.Density(r3.Vec{}), tr.Density(r3.Vec{X: 10}), 1e-9)
}

func TestHeightmapDensityMatchesSurfaceSign(t *testing.T) {
	h := NewHeightmap(42, 0, 10, 0.02, 3, 2.0, 0.5, Material(3))
	surface := h.surfaceHeight(5, 5)
	require.Greater(t, h.Density(r3.Vec{X: 5, Y: surface - 1, Z: 5}), 0.0)
	require.Less(t, h.Density(r3.Vec{X: 5, Y: surface + 1, Z: 5}), 0.0)
}
