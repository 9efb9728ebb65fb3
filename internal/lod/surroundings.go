package lod

import "terrainengine/internal/terrain"

// DistanceToLOD scans an ascending threshold table and returns the finest
// (smallest-index) LOD whose threshold the distance has not yet exceeded, or
// len(thresholds) when the distance exceeds every threshold, matching the
// client's lod_index function in original_source/client/src/load_terrain.rs.
func DistanceToLOD(thresholds []int, distance int) terrain.LODIndex {
	lod := 0
	for lod < len(thresholds) && thresholds[lod] < distance {
		lod++
	}
	return terrain.LODIndex(lod)
}

// chebyshev returns the Chebyshev (L-infinity) distance between two block
// positions, matching §3's "Chebyshev radius" and radius_between in
// original_source/src/surroundings_loader.rs.
func chebyshev(a, b terrain.BlockPosition) int {
	dx := abs(int(a.X) - int(b.X))
	dy := abs(int(a.Y) - int(b.Y))
	dz := abs(int(a.Z) - int(b.Z))
	m := dx
	if dy > m {
		m = dy
	}
	if dz > m {
		m = dz
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Delta is one queued change the surroundings loader wants applied.
type Delta struct {
	Unload   bool
	Position terrain.BlockPosition
	LOD      terrain.LODIndex
}

// SurroundingsLoader iterates the blocks around a focus position in
// ascending-distance order, emitting Load deltas for newly-in-range blocks
// and for blocks whose LOD band changed, and Unload deltas for blocks that
// fell out of range,
// the way original_source/src/surroundings_loader.rs's update_queues does
// with its want_loaded/loaded set diff.
type SurroundingsLoader struct {
	thresholds  []int
	maxDistance int
	loaded      map[terrain.BlockPosition]terrain.LODIndex
}

func NewSurroundingsLoader(thresholds []int) *SurroundingsLoader {
	max := 0
	if len(thresholds) > 0 {
		max = thresholds[len(thresholds)-1]
	}
	return &SurroundingsLoader{
		thresholds:  thresholds,
		maxDistance: max,
		loaded:      make(map[terrain.BlockPosition]terrain.LODIndex),
	}
}

type candidate struct {
	pos      terrain.BlockPosition
	distance int
	lod      terrain.LODIndex
}

// Update recomputes wanted blocks around focus and returns the deltas
// needed to move from the previous state to the new one, in ascending
// distance order (closest changes first), matching the ring-iteration
// emission order of the original's load/unload queues.
func (s *SurroundingsLoader) Update(focus terrain.BlockPosition) []Delta {
	var candidates []candidate
	for x := -s.maxDistance; x <= s.maxDistance; x++ {
		for y := -s.maxDistance; y <= s.maxDistance; y++ {
			for z := -s.maxDistance; z <= s.maxDistance; z++ {
				pos := terrain.BlockPosition{X: focus.X + int32(x), Y: focus.Y + int32(y), Z: focus.Z + int32(z)}
				d := chebyshev(focus, pos)
				if d > s.maxDistance {
					continue
				}
				candidates = append(candidates, candidate{pos: pos, distance: d, lod: DistanceToLOD(s.thresholds, d)})
			}
		}
	}
	sortByDistance(candidates)

	wanted := make(map[terrain.BlockPosition]terrain.LODIndex, len(candidates))
	var deltas []Delta
	for _, c := range candidates {
		wanted[c.pos] = c.lod
		if prevLOD, ok := s.loaded[c.pos]; !ok || prevLOD != c.lod {
			deltas = append(deltas, Delta{Position: c.pos, LOD: c.lod})
		}
	}
	var unloads []candidate
	for pos, lod := range s.loaded {
		if _, ok := wanted[pos]; !ok {
			unloads = append(unloads, candidate{pos: pos, distance: chebyshev(focus, pos), lod: lod})
		}
	}
	sortByDistance(unloads)
	for _, c := range unloads {
		deltas = append(deltas, Delta{Unload: true, Position: c.pos, LOD: c.lod})
	}
	s.loaded = wanted
	return deltas
}

func sortByDistance(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].distance < c[j-1].distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
