package lod

import (
	"testing"

	"terrainengine/internal/physics"
	"terrainengine/internal/terrain"
	"terrainengine/internal/voxelfield"
	"terrainengine/internal/voxeltree"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newLoaderForTest() (*Loader, *terrain.Cache, *physics.Engine) {
	tree := voxeltree.NewTree(8)
	ids := &terrain.IDAllocator{}
	field := voxelfield.Sphere{Center: r3.Vec{}, Radius: 4, Mat: voxelfield.Material(1)}
	cache := terrain.NewCache(tree, field, ids)
	eng := physics.NewEngine()
	return NewLoader(cache, eng), cache, eng
}

func TestLoadPlaceholderInstallsPlaceholder(t *testing.T) {
	loader, _, eng := newLoaderForTest()
	pos := terrain.BlockPosition{X: 1}
	var gotCalls int
	loader.Load(pos, placeholderLOD(), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {
		gotCalls++
	})
	require.True(t, eng.HasPlaceholder(pos))
	require.Equal(t, 0, gotCalls)
}

func TestLoadSameLODTwiceIsNoop(t *testing.T) {
	loader, cache, _ := newLoaderForTest()
	pos := terrain.BlockPosition{X: 1}
	block := cache.Load(pos, terrain.LODIndex(0))
	loader.Load(pos, indexLOD(0), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})
	loader.InsertBlock(block, pos, terrain.LODIndex(0), OwnerID(1))

	calls := 0
	loader.Load(pos, indexLOD(0), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) { calls++ })
	require.Equal(t, 0, calls)
}

func TestUnloadRemovesPhysics(t *testing.T) {
	loader, cache, eng := newLoaderForTest()
	pos := terrain.BlockPosition{} // centered on the sphere, guaranteed surface triangles
	block := cache.Load(pos, terrain.LODIndex(0))
	loader.Load(pos, indexLOD(0), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})
	loader.InsertBlock(block, pos, terrain.LODIndex(0), OwnerID(1))
	require.Equal(t, len(block.IDs), eng.TerrainCount())

	loader.Unload(pos, OwnerID(1))
	require.Equal(t, 0, eng.TerrainCount())
}

func TestLoadRecordsSecondOwnerEvenWhenMatchingInstalledLOD(t *testing.T) {
	loader, cache, eng := newLoaderForTest()
	pos := terrain.BlockPosition{} // centered on the sphere, guaranteed surface triangles

	block := cache.Load(pos, terrain.LODIndex(2))
	require.NotEmpty(t, block.IDs)
	loader.Load(pos, indexLOD(2), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})
	loader.InsertBlock(block, pos, terrain.LODIndex(2), OwnerID(1))
	require.Equal(t, len(block.IDs), eng.TerrainCount())

	// Owner B requests the same LOD that's already installed for owner A.
	// B's request must still be recorded in the owner set...
	loader.Load(pos, indexLOD(2), OwnerID(2), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})

	// ...so that when A unloads, B's still-outstanding request keeps the
	// block's physics installed rather than tearing it down.
	loader.Unload(pos, OwnerID(1))
	require.Equal(t, len(block.IDs), eng.TerrainCount())
}

func TestUnloadKeepsPhysicsWhenOtherOwnerStillWantsLoadedLOD(t *testing.T) {
	loader, cache, eng := newLoaderForTest()
	pos := terrain.BlockPosition{} // centered on the sphere, guaranteed surface triangles

	// Owner A requests the coarse LOD 2 first; it gets installed.
	block2 := cache.Load(pos, terrain.LODIndex(2))
	require.NotEmpty(t, block2.IDs)
	loader.Load(pos, indexLOD(2), OwnerID(1), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})
	loader.InsertBlock(block2, pos, terrain.LODIndex(2), OwnerID(1))
	require.Equal(t, len(block2.IDs), eng.TerrainCount())

	// Owner B then requests the finer LOD 1; it replaces LOD 2 in physics.
	block1 := cache.Load(pos, terrain.LODIndex(1))
	require.NotEmpty(t, block1.IDs)
	loader.Load(pos, indexLOD(1), OwnerID(2), func(terrain.BlockPosition, terrain.LODIndex, OwnerID) {})
	loader.InsertBlock(block1, pos, terrain.LODIndex(1), OwnerID(2))
	require.Equal(t, len(block1.IDs), eng.TerrainCount())

	// A unloads: the finest requested LOD is still B's LOD 1, so physics
	// must be untouched (S4).
	loader.Unload(pos, OwnerID(1))
	require.Equal(t, len(block1.IDs), eng.TerrainCount())
}

func TestDistanceToLOD(t *testing.T) {
	thresholds := []int{2, 4, 8}
	require.Equal(t, terrain.LODIndex(0), DistanceToLOD(thresholds, 1))
	require.Equal(t, terrain.LODIndex(1), DistanceToLOD(thresholds, 3))
	require.Equal(t, terrain.LODIndex(3), DistanceToLOD(thresholds, 100))
}

func TestSurroundingsLoaderEmitsLoadsThenUnloads(t *testing.T) {
	sl := NewSurroundingsLoader([]int{1, 2})
	deltas := sl.Update(terrain.BlockPosition{})
	require.NotEmpty(t, deltas)
	for _, d := range deltas {
		require.False(t, d.Unload)
	}

	deltas = sl.Update(terrain.BlockPosition{X: 10})
	var sawUnload bool
	for _, d := range deltas {
		if d.Unload {
			sawUnload = true
		}
	}
	require.True(t, sawUnload)
}
