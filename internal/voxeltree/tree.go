// Package voxeltree implements the sparse origin-centered voxel octree:
// growth-by-doubling, brush-based rewrite, point lookup, and ray casting.
// Grounded directly on original_source/server/terrain/voxel_tree.rs.
package voxeltree

import (
	"fmt"
	"sync"
)

// Bounds describes the cube a tree node covers: side length 2^LgSize,
// positioned at (X,Y,Z) in units of that side length. LgSize may be
// negative, describing a node smaller than one world unit.
type Bounds struct {
	X, Y, Z int32
	LgSize  int8
}

// Voxel is the payload stored at a tree leaf.
type Voxel struct {
	// Surface carries the extracted-surface data; nil means this leaf is a
	// solid-volume leaf (see VolumeInside below) rather than a surface one.
	Surface *SurfaceVoxel
	// VolumeInside marks a non-surface leaf as entirely solid (true) or
	// entirely empty (false). Only meaningful when Surface == nil.
	VolumeInside bool
}

// SurfaceVoxel holds the extracted iso-surface sample for one leaf cell.
type SurfaceVoxel struct {
	Vertex             [3]float64
	Normal             [3]float64
	Material           uint16
	CornerInsideSurface bool
}

// body is one of Empty, Leaf(Voxel), or Branch([8]body) — the sum type
// original_source calls TreeBody.
type body struct {
	kind     bodyKind
	voxel    Voxel
	branches *branches
}

type bodyKind uint8

const (
	kindEmpty bodyKind = iota
	kindLeaf
	kindBranch
)

// branches is the eight children of a Branch node, addressed lll..hhh by
// the low/high bit of each axis, exactly as in the original's Branches
// struct (fields in x,y,z bit order: bit0=x, bit1=y, bit2=z).
type branches [8]body

func octant(xHigh, yHigh, zHigh bool) int {
	idx := 0
	if xHigh {
		idx |= 1
	}
	if yHigh {
		idx |= 2
	}
	if zHigh {
		idx |= 4
	}
	return idx
}

// Tree is the sparse voxel octree rooted at a single (possibly growing)
// node. The zero value is a valid empty tree.
type Tree struct {
	mu     sync.Mutex // held by GenerateVoxel
	lgSize int8
	root   branches
}

// NewTree returns an empty tree with an initial extent of 2^lgSize.
func NewTree(lgSize int8) *Tree {
	return &Tree{lgSize: lgSize}
}

func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// containsBounds reports whether voxel lies fully inside the tree's current
// extent. The original source's contains_bounds always returns true for
// negative lg_size ("this isn't necessarily true", per its own comment);
// this implementation instead scales the tree's positive half-extent up by
// the voxel's negative lg_size and checks containment against that, which is
// the spec's recommended fix for Open Question #1.
func (t *Tree) containsBounds(v Bounds) bool {
	if v.LgSize >= 0 {
		half := int64(1) << uint(t.lgSize) >> uint(v.LgSize)
		return inRange(int64(v.X), half) && inRange(int64(v.Y), half) && inRange(int64(v.Z), half)
	}
	shift := uint(-v.LgSize)
	half := int64(1) << (uint(t.lgSize) + shift)
	return inRange(int64(v.X), half) && inRange(int64(v.Y), half) && inRange(int64(v.Z), half)
}

func inRange(v, half int64) bool {
	return v >= -half && v < half
}

// GrowToHold doubles the tree's extent, re-nesting each existing top-level
// octant into the diametrically opposite corner of a fresh branch at the
// same octant each time, until voxel fits. Mirrors VoxelTree::grow_to_hold.
func (t *Tree) GrowToHold(v Bounds) {
	for !t.containsBounds(v) {
		old := t.root
		t.lgSize++
		var fresh branches
		// lll -> hhh child of the new lll, llh -> hhl child of the new llh, ...
		for i := 0; i < 8; i++ {
			wrapped := &branches{}
			wrapped[7-i] = old[i]
			fresh[i] = body{kind: kindBranch, branches: wrapped}
		}
		t.root = fresh
	}
}

// findMask returns the bit, within the tree's current extent, that
// distinguishes the voxel's cell at the current descent level: (1<<lgSize)>>1
// shifted by the voxel's own lg_size (right if non-negative, left if
// negative), matching VoxelTree::find_mask.
func (t *Tree) findMask(v Bounds) int64 {
	mask := int64(1) << uint(t.lgSize-1)
	if v.LgSize >= 0 {
		return mask >> uint(v.LgSize)
	}
	return mask << uint(-v.LgSize)
}

// descend walks from the root to the body containing v. With create false it
// stops at the first non-branch node above v's level and reports false. With
// create true, any Empty node or leaf met above v's level is replaced by a
// fresh branch (erasing the leaf, as get_mut_or_create_step does) and the
// body at v's level is returned.
func (t *Tree) descend(v Bounds, create bool) (*body, bool) {
	x, y, z := int64(v.X), int64(v.Y), int64(v.Z)
	cur := &t.root
	idx := octant(x >= 0, y >= 0, z >= 0)
	b := &cur[idx]
	mask := t.findMask(v)
	for mask != 0 {
		if b.kind != kindBranch {
			if !create {
				return b, false
			}
			fresh := &branches{}
			b.kind = kindBranch
			b.branches = fresh
			b.voxel = Voxel{}
		}
		xHigh := x&mask != 0
		yHigh := y&mask != 0
		zHigh := z&mask != 0
		b = &b.branches[octant(xHigh, yHigh, zHigh)]
		mask >>= 1
	}
	return b, true
}

// Get returns the voxel stored at v, if any.
func (t *Tree) Get(v Bounds) (Voxel, bool) {
	if !t.containsBounds(v) {
		return Voxel{}, false
	}
	b, _ := t.descend(v, false)
	if b.kind != kindLeaf {
		return Voxel{}, false
	}
	return b.voxel, true
}

// GetMutOrCreate returns a pointer to the body at v, growing the tree and
// creating intermediate branch nodes as needed. Matches
// VoxelTree::get_mut_or_create: if an existing leaf or empty node is found
// before the final level, it is replaced by a fresh empty Branches (the
// leaf's prior contents are erased).
func (t *Tree) GetMutOrCreate(v Bounds) *Voxel {
	t.GrowToHold(v)
	b, _ := t.descend(v, true)
	if b.kind != kindLeaf {
		b.kind = kindLeaf
		b.voxel = Voxel{}
	}
	return &b.voxel
}

// GenerateVoxel returns the voxel already stored at bounds, or, if none
// exists yet, samples field at bounds' cell and installs the freshly
// extracted voxel before returning it. This is the "create on first touch"
// path the mesh generator uses (§4.d); unlike Remove/resampleLeaf (which
// only ever rewrite cells a brush already overlaps and leaves Empty cells
// untouched, per §8.3's monotonicity property), GenerateVoxel is the one
// path that turns a never-visited Empty cell into real terrain, matching
// §3's "voxels are created ... on first [mesh generation / ray cast]"
// lifecycle note.
//
// GenerateVoxel holds the tree's lock for its whole get-or-create step, so
// concurrent callers are safe; the tree's other methods do not lock.
func (t *Tree) GenerateVoxel(bounds Bounds, field Brush) Voxel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.Get(bounds); ok {
		return v
	}
	p := center(bounds)
	mat := field.Material(p)
	vp := t.GetMutOrCreate(bounds)
	if mat == 0 {
		*vp = Voxel{}
		return *vp
	}
	sv := ExtractSurface(bounds, field)
	if sv == nil {
		*vp = Voxel{VolumeInside: true}
		return *vp
	}
	sv.Material = mat
	*vp = Voxel{Surface: sv}
	return *vp
}

// setEmpty clears the body back to Empty.
func (b *body) setEmpty() {
	b.kind = kindEmpty
	b.branches = nil
	b.voxel = Voxel{}
}

func (b *body) setLeaf(v Voxel) {
	b.kind = kindLeaf
	b.branches = nil
	b.voxel = v
}
