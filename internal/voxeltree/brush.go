package voxeltree

import "math"

// Point3 is a plain coordinate triple. voxeltree stays on the standard
// library and knows nothing of voxelfield's r3.Vec; internal/terrain adapts
// between the two.
type Point3 struct {
	X, Y, Z float64
}

// Brush is the payload a tree rewrite applies: a density/material field
// sampled at leaf granularity. internal/terrain's adapter wraps a
// voxelfield.Mosaic to satisfy this interface.
type Brush interface {
	Density(p Point3) float64
	Material(p Point3) uint16
	Normal(p Point3) Point3
}

func worldExtent(b Bounds) (min, max Point3) {
	size := math.Ldexp(1, int(b.LgSize))
	min = Point3{X: float64(b.X) * size, Y: float64(b.Y) * size, Z: float64(b.Z) * size}
	max = Point3{X: min.X + size, Y: min.Y + size, Z: min.Z + size}
	return min, max
}

func center(b Bounds) Point3 {
	min, max := worldExtent(b)
	return Point3{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2, Z: (min.Z + max.Z) / 2}
}

// overlaps is the symmetric AABB overlap test over two Bounds regardless of
// sign of LgSize, matching brush_overlaps in the original source.
func overlaps(a, b Bounds) bool {
	aMin, aMax := worldExtent(a)
	bMin, bMax := worldExtent(b)
	return aMin.X < bMax.X && bMin.X < aMax.X &&
		aMin.Y < bMax.Y && bMin.Y < aMax.Y &&
		aMin.Z < bMax.Z && bMin.Z < aMax.Z
}

func childBounds(parent Bounds, idx int) Bounds {
	lg := parent.LgSize - 1
	x, y, z := parent.X<<1, parent.Y<<1, parent.Z<<1
	if idx&1 != 0 {
		x++
	}
	if idx&2 != 0 {
		y++
	}
	if idx&4 != 0 {
		z++
	}
	return Bounds{X: x, Y: y, Z: z, LgSize: lg}
}

// Remove rewrites the tree within the region brushBounds overlaps, sampling
// brush at each affected leaf cell. Mirrors TreeBody::remove's branch/leaf
// recursion in original_source/server/terrain/voxel_tree.rs: cells the brush
// doesn't overlap are untouched, Empty cells stay Empty, and overlapping
// leaves/branches are resampled against the brush.
func (t *Tree) Remove(brush Brush, brushBounds Bounds) {
	t.GrowToHold(brushBounds)
	rootBounds := Bounds{X: -1, Y: -1, Z: -1, LgSize: t.lgSize}
	for i := 0; i < 8; i++ {
		b := &t.root[i]
		bounds := Bounds{LgSize: t.lgSize}
		if i&1 != 0 {
			bounds.X = 0
		} else {
			bounds.X = rootBounds.X
		}
		if i&2 != 0 {
			bounds.Y = 0
		} else {
			bounds.Y = rootBounds.Y
		}
		if i&4 != 0 {
			bounds.Z = 0
		} else {
			bounds.Z = rootBounds.Z
		}
		removeBody(b, bounds, brush, brushBounds)
	}
}

func removeBody(b *body, bounds Bounds, brush Brush, brushBounds Bounds) {
	if !overlaps(bounds, brushBounds) {
		return
	}
	switch b.kind {
	case kindBranch:
		for i := 0; i < 8; i++ {
			removeBody(&b.branches[i], childBounds(bounds, i), brush, brushBounds)
		}
	case kindEmpty:
		// no material to remove
	case kindLeaf:
		if b.voxel.Surface == nil && !b.voxel.VolumeInside {
			// Leaf(Volume(Empty)): already fully empty, nothing to carve.
			return
		}
		resampleLeaf(b, bounds, brush)
	}
}

// resampleLeaf re-derives a leaf's contents from the brush at the cell's
// representative point. If the brush leaves no material there the cell
// collapses to an empty Volume leaf (it stays in the tree, so later mesh
// generation does not resample it); if the cell is uniformly solid (no edge crossing) it
// collapses to a Volume leaf; otherwise it becomes a surface leaf carrying
// the brush's material and a freshly extracted surface sample.
func resampleLeaf(b *body, bounds Bounds, brush Brush) {
	p := center(bounds)
	mat := brush.Material(p)
	if mat == 0 {
		b.setLeaf(Voxel{})
		return
	}
	sv := ExtractSurface(bounds, brush)
	if sv == nil {
		b.setLeaf(Voxel{VolumeInside: true})
		return
	}
	sv.Material = mat
	b.setLeaf(Voxel{Surface: sv})
}
