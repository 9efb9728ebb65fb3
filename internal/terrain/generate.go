package terrain

import (
	"sync"

	"terrainengine/internal/voxelfield"
	"terrainengine/internal/voxeltree"

	"gonum.org/v1/gonum/spatial/r3"
)

// fieldBrush adapts a voxelfield.Field (the stdlib-free interface expected
// by voxeltree.Brush) across the Point3/r3.Vec boundary the two packages
// keep between them (see DESIGN.md: voxeltree stays on the standard
// library).
type fieldBrush struct {
	field voxelfield.Field
}

func (f fieldBrush) Density(p voxeltree.Point3) float64 {
	return f.field.Density(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

func (f fieldBrush) Material(p voxeltree.Point3) uint16 {
	return uint16(f.field.Material(r3.Vec{X: p.X, Y: p.Y, Z: p.Z}))
}

func (f fieldBrush) Normal(p voxeltree.Point3) voxeltree.Point3 {
	n := f.field.Normal(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
	return voxeltree.Point3{X: n.X, Y: n.Y, Z: n.Z}
}

// cellSize returns the voxel edge length, in world units, for a given LOD:
// each coarser LOD doubles the cell size, matching the terrain block's
// LG_WIDTH-scaled voxel grid in the original source.
func cellSize(lod LODIndex) int32 {
	return int32(1) << uint(lod)
}

// cellGrid caches generated voxels for one block's worth of cells (plus a
// one-cell halo on each side: the low side stitches faces across the block's
// min boundary, the high side holds the +1 neighbours the sign tests read)
// so each grid point is only generated once per call.
type cellGrid struct {
	tree  *voxeltree.Tree
	field fieldBrush
	lg    int8
	cache map[[3]int32]voxeltree.Voxel
}

func (g *cellGrid) at(x, y, z int32) voxeltree.Voxel {
	key := [3]int32{x, y, z}
	if v, ok := g.cache[key]; ok {
		return v
	}
	bounds := voxeltree.Bounds{X: x, Y: y, Z: z, LgSize: g.lg}
	v := g.tree.GenerateVoxel(bounds, g.field)
	g.cache[key] = v
	return v
}

// GenerateBlock walks the voxel grid cells inside pos's block extent (plus
// a one-cell halo needed for face stitching) at the given LOD, generating
// each cell on demand from field, and emits one quad (as two triangles) for
// every axis-adjacent pair of grid points whose corner-inside-surface sign
// differs — the naive surface-nets construction §4.d describes as
// "polygonal faces between adjacent surface voxels sharing an axis whose
// corner_inside_surface flags differ". Generation itself fans out across a
// worker pool per grid point, following the worker-pool shape of the
// teacher's NoiseGenerator.Generate (internal/terrain/noise.go:
// tasks/results channels, sync.WaitGroup), generalized from per-column
// height sampling to per-voxel-grid-point field sampling.
func GenerateBlock(tree *voxeltree.Tree, field voxelfield.Field, ids *IDAllocator, pos BlockPosition, lod LODIndex) *TerrainBlock {
	step := cellSize(lod)
	lg := int8(lod)
	width := int32(1) << LGWidth
	cellsPerEdge := width / step
	if cellsPerEdge < 1 {
		cellsPerEdge = 1
	}

	baseX := (pos.X * width) >> uint(lg)
	baseY := (pos.Y * width) >> uint(lg)
	baseZ := (pos.Z * width) >> uint(lg)

	grid := &cellGrid{tree: tree, field: fieldBrush{field: field}, lg: lg, cache: make(map[[3]int32]voxeltree.Voxel)}

	// Pre-populate every grid point touched by this block plus its one-cell
	// halo on each side concurrently; face stitching below then only ever
	// reads from the warm cache.
	type point struct{ x, y, z int32 }
	var points []point
	for x := int32(-1); x <= cellsPerEdge; x++ {
		for y := int32(-1); y <= cellsPerEdge; y++ {
			for z := int32(-1); z <= cellsPerEdge; z++ {
				points = append(points, point{baseX + x, baseY + y, baseZ + z})
			}
		}
	}

	jobs := make(chan point, 64)
	var mu sync.Mutex
	const workers = 4
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for p := range jobs {
				v := grid.tree.GenerateVoxel(voxeltree.Bounds{X: p.x, Y: p.y, Z: p.z, LgSize: lg}, grid.field)
				mu.Lock()
				grid.cache[[3]int32{p.x, p.y, p.z}] = v
				mu.Unlock()
			}
		}()
	}
	for _, p := range points {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	block := &TerrainBlock{}
	half := float64(step) / 2

	emitQuad := func(corners [4]voxeltree.Voxel, insideAtLow bool) {
		for _, c := range corners {
			if c.Surface == nil {
				return // an unstitched cell: skip this face rather than fabricate geometry
			}
		}
		verts := [4][3]float64{corners[0].Surface.Vertex, corners[1].Surface.Vertex, corners[2].Surface.Vertex, corners[3].Surface.Vertex}
		tris := [2][3]int{{0, 1, 2}, {0, 2, 3}}
		if !insideAtLow {
			tris = [2][3]int{{0, 2, 1}, {0, 3, 2}}
		}
		for _, tri := range tris {
			a, b, c := verts[tri[0]], verts[tri[1]], verts[tri[2]]
			block.Vertices = append(block.Vertices, a, b, c)
			normal := faceNormal(a, b, c)
			mat := corners[0].Surface.Material
			if !insideAtLow {
				mat = corners[1].Surface.Material
			}
			id := ids.Allocate()
			block.Normals = append(block.Normals, normal)
			block.Materials = append(block.Materials, mat)
			block.IDs = append(block.IDs, id)
			block.Bounds = append(block.Bounds, triangleBounds(a, b, c, half))
		}
	}

	for x := int32(0); x < cellsPerEdge; x++ {
		for y := int32(0); y < cellsPerEdge; y++ {
			for z := int32(0); z < cellsPerEdge; z++ {
				gx, gy, gz := baseX+x, baseY+y, baseZ+z
				here := grid.at(gx, gy, gz)

				if next := grid.at(gx+1, gy, gz); signFlips(next, here) {
					emitQuad([4]voxeltree.Voxel{
						grid.at(gx, gy-1, gz-1), grid.at(gx, gy, gz-1),
						grid.at(gx, gy, gz), grid.at(gx, gy-1, gz),
					}, insideSign(here))
				}
				if next := grid.at(gx, gy+1, gz); signFlips(next, here) {
					emitQuad([4]voxeltree.Voxel{
						grid.at(gx-1, gy, gz-1), grid.at(gx, gy, gz-1),
						grid.at(gx, gy, gz), grid.at(gx-1, gy, gz),
					}, insideSign(here))
				}
				if next := grid.at(gx, gy, gz+1); signFlips(next, here) {
					emitQuad([4]voxeltree.Voxel{
						grid.at(gx-1, gy-1, gz), grid.at(gx, gy-1, gz),
						grid.at(gx, gy, gz), grid.at(gx-1, gy, gz),
					}, insideSign(here))
				}
			}
		}
	}

	return block
}

// insideSign reports whether voxel v's min corner is inside the solid
// region: a surface leaf carries that flag directly, a plain volume leaf
// carries it as VolumeInside.
func insideSign(v voxeltree.Voxel) bool {
	if v.Surface != nil {
		return v.Surface.CornerInsideSurface
	}
	return v.VolumeInside
}

func signFlips(a, b voxeltree.Voxel) bool {
	return insideSign(a) != insideSign(b)
}

func faceNormal(a, b, c [3]float64) [3]float64 {
	ab := r3.Vec{X: b[0] - a[0], Y: b[1] - a[1], Z: b[2] - a[2]}
	ac := r3.Vec{X: c[0] - a[0], Y: c[1] - a[1], Z: c[2] - a[2]}
	n := r3.Cross(ab, ac)
	if len := r3.Norm(n); len > 1e-9 {
		n = r3.Scale(1/len, n)
	}
	return [3]float64{n.X, n.Y, n.Z}
}

func triangleBounds(a, b, c [3]float64, pad float64) AABB {
	min := a
	max := a
	for _, p := range [2][3]float64{b, c} {
		for i := 0; i < 3; i++ {
			if p[i] < min[i] {
				min[i] = p[i]
			}
			if p[i] > max[i] {
				max[i] = p[i]
			}
		}
	}
	return AABB{
		Min: [3]float64{min[0] - pad, min[1] - pad, min[2] - pad},
		Max: [3]float64{max[0] + pad, max[1] + pad, max[2] + pad},
	}
}
