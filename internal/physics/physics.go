// Package physics provides the minimal physics-octree collaborator the lod
// and terrain packages talk to: inserting/removing terrain collision
// bounds keyed by entity id. The physics engine's own internals (broad
// phase, collision resolution) are explicitly out of scope (see spec §1);
// this package is the interface surface those internals would sit behind.
// Grounded in shape on original_source/server/src/physics.rs's
// insert/remove-terrain operations and the teacher's id-keyed map style in
// internal/entities/manager.go.
package physics

import (
	"sync"

	"terrainengine/internal/terrain"
)

// Interface is the collaborator the lod loader drives directly.
type Interface interface {
	InsertTerrain(id terrain.EntityID, bounds terrain.AABB)
	RemoveTerrain(id terrain.EntityID)
	InsertPlaceholder(pos terrain.BlockPosition)
	RemovePlaceholder(pos terrain.BlockPosition)
}

// MiscID identifies a non-terrain physics body (player, mob, projectile)
// tracked in the misc octree, keyed independently of terrain.EntityID per
// §4.f's "two octrees keyed by entity id".
type MiscID uint64

// Collision is returned by TranslateMisc when a proposed move would
// overlap existing terrain: the terrain entity and bounds it collided
// with.
type Collision struct {
	OtherID   terrain.EntityID
	OtherAABB terrain.AABB
}

func overlapsAABB(a, b terrain.AABB) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1] &&
		a.Min[2] < b.Max[2] && b.Min[2] < a.Max[2]
}

func translateAABB(a terrain.AABB, delta [3]float64) terrain.AABB {
	return terrain.AABB{
		Min: [3]float64{a.Min[0] + delta[0], a.Min[1] + delta[1], a.Min[2] + delta[2]},
		Max: [3]float64{a.Max[0] + delta[0], a.Max[1] + delta[1], a.Max[2] + delta[2]},
	}
}

// Engine is an in-memory Interface implementation: a flat map from entity
// id to AABB plus a set of placeholder block positions, plus a second flat
// map for misc (non-terrain) bodies. It performs no broad-phase collision
// detection of its own beyond a linear AABB scan — that's the out-of-scope
// engine this interface stands in for (see spec §4.f, §1).
type Engine struct {
	mu           sync.Mutex
	terrainAABBs map[terrain.EntityID]terrain.AABB
	placeholders map[terrain.BlockPosition]struct{}
	miscAABBs    map[MiscID]terrain.AABB
}

func NewEngine() *Engine {
	return &Engine{
		terrainAABBs: make(map[terrain.EntityID]terrain.AABB),
		placeholders: make(map[terrain.BlockPosition]struct{}),
		miscAABBs:    make(map[MiscID]terrain.AABB),
	}
}

// InsertMisc registers a non-terrain body's bounds, keyed independently of
// the terrain octree's entity ids.
func (e *Engine) InsertMisc(id MiscID, bounds terrain.AABB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.miscAABBs[id] = bounds
}

// RemoveMisc deregisters a misc body.
func (e *Engine) RemoveMisc(id MiscID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.miscAABBs, id)
}

// TranslateMisc attempts to move misc body id by delta. It first checks the
// translated bounds against the terrain octree; on collision the move is
// refused and the colliding terrain entity/bounds are returned. On success
// the misc body's stored bounds are updated and nil is returned. Mirrors
// §4.f's translate_misc contract.
func (e *Engine) TranslateMisc(id MiscID, delta [3]float64) *Collision {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, ok := e.miscAABBs[id]
	if !ok {
		return nil
	}
	moved := translateAABB(current, delta)
	for otherID, otherAABB := range e.terrainAABBs {
		if overlapsAABB(moved, otherAABB) {
			return &Collision{OtherID: otherID, OtherAABB: otherAABB}
		}
	}
	e.miscAABBs[id] = moved
	return nil
}

func (e *Engine) InsertTerrain(id terrain.EntityID, bounds terrain.AABB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terrainAABBs[id] = bounds
}

func (e *Engine) RemoveTerrain(id terrain.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.terrainAABBs, id)
}

func (e *Engine) InsertPlaceholder(pos terrain.BlockPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placeholders[pos] = struct{}{}
}

func (e *Engine) RemovePlaceholder(pos terrain.BlockPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.placeholders, pos)
}

// TerrainCount reports how many terrain AABBs are currently installed, for
// tests and diagnostics.
func (e *Engine) TerrainCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.terrainAABBs)
}

// HasPlaceholder reports whether pos currently has a placeholder installed.
func (e *Engine) HasPlaceholder(pos terrain.BlockPosition) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.placeholders[pos]
	return ok
}
