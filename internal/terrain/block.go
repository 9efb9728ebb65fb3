// Package terrain generates and caches per-block, per-LOD meshes from the
// voxel tree, and drives brush-triggered regeneration of already-cached
// blocks. Grounded on original_source/server/src/terrain/mod.rs
// (MipMeshMap/Terrain.load/Terrain.remove) and the teacher's worker-pool
// generation loop in internal/terrain/noise.go.
package terrain

import (
	"sync"
	"sync/atomic"

	"terrainengine/internal/voxelfield"
	"terrainengine/internal/voxeltree"
)

// LGWidth is the log2 of a terrain block's edge length in voxels, matching
// original_source's terrain_block::LG_WIDTH.
const LGWidth = 4

// BlockPosition identifies one terrain block in block-grid coordinates
// (world position divided by 2^LGWidth).
type BlockPosition struct {
	X, Y, Z int32
}

// LODIndex is a level of detail, 0 = finest.
type LODIndex uint8

// EntityID is a monotonically allocated id for one mesh triangle's physics
// handle. Grounded on network.Server's atomic.Uint64 sequence counter in
// the teacher (internal/network/server.go) — the same "a counter is all
// the allocator needs to be" idiom, applied here instead of the teacher's
// unrelated game-unit entities.Manager.
type EntityID uint64

// IDAllocator hands out increasing EntityIDs.
type IDAllocator struct {
	next atomic.Uint64
}

func (a *IDAllocator) Allocate() EntityID {
	return EntityID(a.next.Add(1))
}

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min, Max [3]float64
}

// TerrainBlock is one triangle mesh for a (BlockPosition, LODIndex) cell.
type TerrainBlock struct {
	Vertices  [][3]float64
	Normals   [][3]float64
	Materials []uint16
	IDs       []EntityID
	Bounds    []AABB
}

func (b *TerrainBlock) triangleCount() int { return len(b.IDs) }

// mipMesh holds, per LOD, the cached block (nil = not yet generated).
type mipMesh struct {
	lods []*TerrainBlock
}

func (m *mipMesh) get(i LODIndex) *TerrainBlock {
	if int(i) >= len(m.lods) {
		return nil
	}
	return m.lods[i]
}

func (m *mipMesh) set(i LODIndex, b *TerrainBlock) {
	for len(m.lods) <= int(i) {
		m.lods = append(m.lods, nil)
	}
	m.lods[i] = b
}

// Cache is the Terrain.all_blocks memoization table: one mipMesh per
// BlockPosition, guarded by a single mutex. That mutex is held across
// generation and brushing, so it also serialises Cache's calls into the
// voxel tree; the tree's own lock covers GenerateVoxel, which
// GenerateBlock's workers call concurrently. Lock order: lod_map ->
// in_progress -> all_blocks -> voxel tree -> physics.
type Cache struct {
	mu    sync.Mutex
	blocks map[BlockPosition]*mipMesh
	tree  *voxeltree.Tree
	field voxelfield.Field
	ids   *IDAllocator
}

// NewCache builds an empty block cache over tree, generating never-visited
// voxels from field and allocating entity ids from ids.
func NewCache(tree *voxeltree.Tree, field voxelfield.Field, ids *IDAllocator) *Cache {
	return &Cache{
		blocks: make(map[BlockPosition]*mipMesh),
		tree:   tree,
		field:  field,
		ids:    ids,
	}
}

func (c *Cache) mesh(pos BlockPosition) *mipMesh {
	m := c.blocks[pos]
	if m == nil {
		m = &mipMesh{}
		c.blocks[pos] = m
	}
	return m
}

// Load returns the cached block at (pos, lod), generating and memoizing it
// if absent. Mirrors Terrain.load.
func (c *Cache) Load(pos BlockPosition, lod LODIndex) *TerrainBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.mesh(pos)
	if b := m.get(lod); b != nil {
		return b
	}
	b := GenerateBlock(c.tree, c.field, c.ids, pos, lod)
	m.set(lod, b)
	return b
}

// Peek returns the cached block at (pos, lod) without generating it.
func (c *Cache) Peek(pos BlockPosition, lod LODIndex) (*TerrainBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.blocks[pos]
	if m == nil {
		return nil, false
	}
	b := m.get(lod)
	return b, b != nil
}

// BlockChanged is invoked for every (block, lod) regenerated by Brush.
type BlockChanged func(block *TerrainBlock, pos BlockPosition, lod LODIndex)

// Brush rewrites the voxel tree with brush over brushBounds, then
// regenerates every already-cached LOD of every block whose world extent
// intersects brushBounds, invoking onChange for each. Mirrors Terrain.remove.
func (c *Cache) Brush(brush voxelfield.Mosaic, brushBounds voxeltree.Bounds, onChange BlockChanged) {
	adapter := fieldBrush{field: brush}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tree.Remove(adapter, brushBounds)

	// brushBounds' coordinates are in units of its own size; convert to
	// world units before dividing down to block coordinates.
	toBlock := func(c int32) int32 {
		if brushBounds.LgSize >= 0 {
			return (c << uint(brushBounds.LgSize)) >> LGWidth
		}
		return (c >> uint(-brushBounds.LgSize)) >> LGWidth
	}
	minX, minY, minZ := toBlock(brushBounds.X), toBlock(brushBounds.Y), toBlock(brushBounds.Z)
	span := int32(1) << uint(brushBounds.LgSize-LGWidth+1)
	if span < 1 {
		span = 1
	}
	for x := minX - 1; x <= minX+span; x++ {
		for y := minY - 1; y <= minY+span; y++ {
			for z := minZ - 1; z <= minZ+span; z++ {
				pos := BlockPosition{X: x, Y: y, Z: z}
				m, ok := c.blocks[pos]
				if !ok {
					continue
				}
				for i, cached := range m.lods {
					if cached == nil {
						continue
					}
					lod := LODIndex(i)
					fresh := GenerateBlock(c.tree, c.field, c.ids, pos, lod)
					m.lods[i] = fresh
					if onChange != nil {
						onChange(fresh, pos, lod)
					}
				}
			}
		}
	}
}
