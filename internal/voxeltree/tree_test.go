package voxeltree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInsertAndLookup mirrors voxel_tree.rs's insert_and_lookup test.
func TestInsertAndLookup(t *testing.T) {
	tree := NewTree(0)
	set := func(x, y, z int32, lg int8, mat uint16) {
		v := tree.GetMutOrCreate(Bounds{X: x, Y: y, Z: z, LgSize: lg})
		v.Surface = &SurfaceVoxel{Material: mat}
	}
	set(1, 1, 1, 0, 1)
	set(8, -8, 4, 0, 2)
	set(2, 0, 4, 4, 3)
	set(9, 0, 16, 2, 4)
	set(9, 0, 16, 2, 5) // second insert at the same bounds overwrites

	get := func(x, y, z int32, lg int8) (Voxel, bool) {
		return tree.Get(Bounds{X: x, Y: y, Z: z, LgSize: lg})
	}

	v, ok := get(1, 1, 1, 0)
	require.True(t, ok)
	require.Equal(t, uint16(1), v.Surface.Material)

	v, ok = get(8, -8, 4, 0)
	require.True(t, ok)
	require.Equal(t, uint16(2), v.Surface.Material)

	v, ok = get(9, 0, 16, 2)
	require.True(t, ok)
	require.Equal(t, uint16(5), v.Surface.Material)

	_, ok = get(2, 0, 4, 4)
	require.False(t, ok)
}

// TestWrongVoxelSizeIsNotFound mirrors wrong_voxel_size_is_not_found.
func TestWrongVoxelSizeIsNotFound(t *testing.T) {
	tree := NewTree(0)
	v := tree.GetMutOrCreate(Bounds{X: 4, Y: 4, Z: -4, LgSize: 1})
	v.Surface = &SurfaceVoxel{Material: 1}

	_, ok := tree.Get(Bounds{X: 4, Y: 4, Z: -4, LgSize: 0})
	require.False(t, ok)
	_, ok = tree.Get(Bounds{X: 4, Y: 4, Z: -4, LgSize: 2})
	require.False(t, ok)
}

// TestGrowIsTransparent mirrors grow_is_transparent: inserting a voxel at a
// small scale, then forcing growth via a far-away insert, must not disturb
// the original voxel.
func TestGrowIsTransparent(t *testing.T) {
	tree := NewTree(0)
	v := tree.GetMutOrCreate(Bounds{X: 1, Y: 1, Z: 1, LgSize: 0})
	v.Surface = &SurfaceVoxel{Material: 7}

	tree.GetMutOrCreate(Bounds{X: 1000, Y: 1000, Z: 1000, LgSize: 0})
	tree.GetMutOrCreate(Bounds{X: -1000, Y: -1000, Z: -1000, LgSize: 0})

	got, ok := tree.Get(Bounds{X: 1, Y: 1, Z: 1, LgSize: 0})
	require.True(t, ok)
	require.Equal(t, uint16(7), got.Surface.Material)
}

// TestContainsBoundsSubUnit exercises the Open Question #1 fix: a negative
// lg_size bounds is only "contained" when it actually fits inside the
// tree's extent, scaled accordingly — not unconditionally true.
func TestContainsBoundsSubUnit(t *testing.T) {
	tree := NewTree(0) // extent [-1, 1)
	require.True(t, tree.containsBounds(Bounds{X: -2, Y: 0, Z: 0, LgSize: -1}))
	require.False(t, tree.containsBounds(Bounds{X: -3, Y: 0, Z: 0, LgSize: -1}))
}

// constBrush is a trivial Brush that reports the same density/material/
// normal everywhere, used to exercise Remove in isolation.
type constBrush struct {
	density  float64
	material uint16
}

func (b constBrush) Density(Point3) float64 { return b.density }
func (b constBrush) Material(Point3) uint16 { return b.material }
func (b constBrush) Normal(Point3) Point3   { return Point3{Z: 1} }

// TestRemoveSkipsAlreadyEmptyLeaf mirrors TreeBody::remove's
// Leaf(Volume(false)) no-op arm: once a leaf has collapsed to an empty
// volume, a later brush pass over the same bounds must leave it untouched
// rather than resampling it from the brush field.
func TestRemoveSkipsAlreadyEmptyLeaf(t *testing.T) {
	tree := NewTree(0)
	bounds := Bounds{X: 1, Y: 1, Z: 1, LgSize: 0}

	// Explicitly materialize bounds as a Leaf(Volume(Empty)) — the state a
	// prior full-strength Remove collapses a leaf to.
	tree.GetMutOrCreate(bounds)

	v, ok := tree.Get(bounds)
	require.True(t, ok)
	require.Nil(t, v.Surface)
	require.False(t, v.VolumeInside)

	// A brush pass whose field would otherwise add material everywhere
	// must not revive the already-empty leaf.
	addBrush := constBrush{density: 1, material: 9}
	tree.Remove(addBrush, Bounds{X: 0, Y: 0, Z: 0, LgSize: 10})

	v, ok = tree.Get(bounds)
	require.True(t, ok)
	require.Nil(t, v.Surface)
	require.False(t, v.VolumeInside)
}

// TestSimpleCastRay mirrors simple_cast_ray.
func TestSimpleCastRay(t *testing.T) {
	tree := NewTree(0)
	v1 := tree.GetMutOrCreate(Bounds{X: 1, Y: 1, Z: 1, LgSize: 0})
	v1.Surface = &SurfaceVoxel{Material: 1}
	v2 := tree.GetMutOrCreate(Bounds{X: 4, Y: 4, Z: 4, LgSize: 0})
	v2.Surface = &SurfaceVoxel{Material: 2}

	hit, ok := tree.CastRay(Ray{
		Origin:    Point3{X: 4.5, Y: 3.0, Z: 4.5},
		Direction: Point3{X: 0.1, Y: 0.8, Z: 0.1},
	})
	require.True(t, ok)
	require.Equal(t, uint16(2), hit.Voxel.Surface.Material)
	require.Equal(t, int32(4), hit.Bounds.X)
	require.Equal(t, int32(4), hit.Bounds.Y)
	require.Equal(t, int32(4), hit.Bounds.Z)
}
