// Package clientmirror implements the client-side terrain mirror: the
// range/LOD gate on incoming block sends, and the diff against the
// previously loaded block at a position. Grounded on
// original_source/client/src/load_terrain.rs.
package clientmirror

import (
	"sync"

	"terrainengine/internal/lod"
	"terrainengine/internal/terrain"
)

// BlockSend is the decoded payload of a Server->Client terrain block
// message, after internal/network's LazyBlock has been forced.
type BlockSend struct {
	Position terrain.BlockPosition
	LOD      terrain.LODIndex
	Block    *terrain.TerrainBlock
}

// ViewUpdate is one instruction for the (out-of-scope) view/render layer:
// AddBlock installs triangle data, RemoveTerrain retires one physics/mesh
// id, RemoveBlockData retires an entire previous block's data wholesale.
type ViewUpdate struct {
	AddBlock        *BlockSend
	RemoveTerrainID *terrain.EntityID
	RemoveBlockData *struct {
		Position terrain.BlockPosition
		LOD      terrain.LODIndex
	}
}

type loadedEntry struct {
	block *terrain.TerrainBlock
	lod   terrain.LODIndex
}

// Mirror tracks which blocks the client currently believes are loaded.
type Mirror struct {
	mu              sync.Mutex
	playerPosition  terrain.BlockPosition
	maxLoadDistance int
	thresholds      []int
	loaded          map[terrain.BlockPosition]loadedEntry
}

func NewMirror(maxLoadDistance int, thresholds []int) *Mirror {
	return &Mirror{
		maxLoadDistance: maxLoadDistance,
		thresholds:      thresholds,
		loaded:          make(map[terrain.BlockPosition]loadedEntry),
	}
}

// SetPlayerPosition updates the block position used for the distance/LOD
// gate in HandleBlockSend.
func (m *Mirror) SetPlayerPosition(pos terrain.BlockPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerPosition = pos
}

// HandleBlockSend applies the distance/LOD gate, then diffs against
// whatever was previously loaded at this position, emitting exactly the
// view updates needed: drop if too far or the wrong LOD for the current
// distance band; otherwise install the new block and, if something was
// already loaded there, first emit its removal. Mirrors
// load_terrain_block, with the previously-duplicated removal logic (per the
// original's own "duplicated elsewhere" comment) factored into emitRemoval,
// per spec Design Note #3.
func (m *Mirror) HandleBlockSend(send BlockSend) []ViewUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	distance := chebyshevDistance(m.playerPosition, send.Position)
	if distance > m.maxLoadDistance {
		return nil
	}
	wantLOD := lod.DistanceToLOD(m.thresholds, distance)
	if wantLOD != send.LOD {
		return nil
	}

	var updates []ViewUpdate
	if prev, ok := m.loaded[send.Position]; ok {
		updates = append(updates, emitRemoval(send.Position, prev)...)
	}

	if len(send.Block.IDs) > 0 {
		updates = append(updates, ViewUpdate{AddBlock: &send})
	}

	m.loaded[send.Position] = loadedEntry{block: send.Block, lod: send.LOD}
	return updates
}

// emitRemoval is the single removal helper spec Design Note #3 asks for:
// one entity-id removal per previously installed triangle, then one
// whole-block-data removal, instead of repeating this inline at every call
// site that needs to replace a loaded block.
func emitRemoval(pos terrain.BlockPosition, prev loadedEntry) []ViewUpdate {
	updates := make([]ViewUpdate, 0, len(prev.block.IDs)+1)
	for _, id := range prev.block.IDs {
		id := id
		updates = append(updates, ViewUpdate{RemoveTerrainID: &id})
	}
	updates = append(updates, ViewUpdate{RemoveBlockData: &struct {
		Position terrain.BlockPosition
		LOD      terrain.LODIndex
	}{Position: pos, LOD: prev.lod}})
	return updates
}

func chebyshevDistance(a, b terrain.BlockPosition) int {
	dx := absInt(int(a.X) - int(b.X))
	dy := absInt(int(a.Y) - int(b.Y))
	dz := absInt(int(a.Z) - int(b.Z))
	m := dx
	if dy > m {
		m = dy
	}
	if dz > m {
		m = dz
	}
	return m
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
