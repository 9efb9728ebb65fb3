// Package lod implements the LOD loader/ownership multiplexer (§4.g) and
// the surroundings loader (§4.h) that drives it. Grounded directly on
// original_source/server/src/terrain_loader.rs and
// original_source/src/surroundings_loader.rs.
package lod

import (
	"sync"

	"terrainengine/internal/physics"
	"terrainengine/internal/terrain"
)

// OwnerID identifies the requester that wants a block loaded: a client, or
// a coarse background process.
type OwnerID uint64

// LOD is either a concrete mip level or the placeholder level requested
// before any real mesh is available.
type LOD struct {
	Placeholder bool
	Index       terrain.LODIndex
}

func indexLOD(i terrain.LODIndex) LOD { return LOD{Index: i} }

func placeholderLOD() LOD { return LOD{Placeholder: true} }

// less reports whether l is a finer (more detailed) LOD than o. Placeholder
// is coarser than any concrete index.
func (l LOD) less(o LOD) bool {
	if l.Placeholder != o.Placeholder {
		return o.Placeholder
	}
	if l.Placeholder {
		return false
	}
	return l.Index < o.Index
}

func (l LOD) eq(o LOD) bool { return l == o }

type ownerRequest struct {
	owner OwnerID
	lod   LOD
}

// blockState is one entry of the lod_map: the LOD currently loaded (if
// any) for a block position, plus every owner's desired LOD.
type blockState struct {
	loaded  *LOD
	desired []ownerRequest
}

func (s *blockState) indexOf(owner OwnerID) int {
	for i, r := range s.desired {
		if r.owner == owner {
			return i
		}
	}
	return -1
}

// lodMap is the position -> blockState table, one mutex for the whole map
// (matches the teacher's coarse-grained RWMutex-per-table style, e.g.
// world.Manager's chunks map).
type lodMap struct {
	mu     sync.Mutex
	blocks map[terrain.BlockPosition]*blockState
}

func newLODMap() *lodMap {
	return &lodMap{blocks: make(map[terrain.BlockPosition]*blockState)}
}

// LoadBlock is the callback the loader invokes when a block at a given LOD
// must actually be generated or fetched — the update/gaia thread boundary
// in §5; the caller enqueues this onto the work bus rather than blocking.
type LoadBlock func(pos terrain.BlockPosition, lod terrain.LODIndex, owner OwnerID)

// Loader is the LOD loader / ownership multiplexer. Method order always
// takes lodMap's lock before inProgress's lock before the physics lock (the
// physics engine does its own internal locking) — never the physics lock
// first. See SPEC_FULL.md's "explicit mutex-acquisition order" note.
type Loader struct {
	cache      *terrain.Cache
	physics    physics.Interface
	lodMap     *lodMap
	inProgress sync.Map // terrain.BlockPosition -> struct{}
}

func NewLoader(cache *terrain.Cache, phys physics.Interface) *Loader {
	return &Loader{
		cache:   cache,
		physics: phys,
		lodMap:  newLODMap(),
	}
}

// Load requests that block position be loaded at newLOD on behalf of owner.
// Mirrors TerrainLoader::load: a request only triggers work when it changes
// the finest LOD any owner wants for this block, computed by comparing the
// finest of all owners' requests before and after installing this one — not
// by comparing against the block's globally-installed LOD, since a second
// owner's first-ever request must still be recorded even if it happens to
// match what's already loaded (§4.g step 1).
func (l *Loader) Load(pos terrain.BlockPosition, newLOD LOD, owner OwnerID, loadBlock LoadBlock) {
	l.lodMap.mu.Lock()

	state, blockKnown := l.lodMap.blocks[pos]
	if !blockKnown {
		state = &blockState{}
		l.lodMap.blocks[pos] = state
	}

	if i := state.indexOf(owner); i >= 0 && state.desired[i].lod.eq(newLOD) {
		l.lodMap.mu.Unlock()
		return
	}

	before := finestOf(state.desired)
	l.upsertDesired(state, owner, newLOD)
	after := finestOf(state.desired)

	maxLODChanged := before == nil || after == nil || !before.eq(*after)

	if !maxLODChanged {
		l.lodMap.mu.Unlock()
		return
	}
	l.lodMap.mu.Unlock()

	if newLOD.Placeholder {
		l.inProgress.Store(pos, struct{}{})
		l.physics.InsertPlaceholder(pos)
		return
	}

	if cached, ok := l.cache.Peek(pos, newLOD.Index); ok {
		l.InsertBlock(cached, pos, newLOD.Index, owner)
		return
	}
	loadBlock(pos, newLOD.Index, owner)
}

func (l *Loader) upsertDesired(state *blockState, owner OwnerID, lod LOD) {
	if i := state.indexOf(owner); i >= 0 {
		state.desired[i].lod = lod
		return
	}
	state.desired = append(state.desired, ownerRequest{owner: owner, lod: lod})
}

// InsertBlock installs a generated block as the loaded LOD for pos on
// behalf of owner, swapping any previously-installed physics bounds for the
// new ones. Mirrors TerrainLoader::insert_block, including silently
// dropping stale inserts whose desired LOD no longer matches what the owner
// currently wants.
func (l *Loader) InsertBlock(block *terrain.TerrainBlock, pos terrain.BlockPosition, lod terrain.LODIndex, owner OwnerID) {
	l.lodMap.mu.Lock()
	state, ok := l.lodMap.blocks[pos]
	if !ok {
		l.lodMap.mu.Unlock()
		return
	}
	i := state.indexOf(owner)
	if i < 0 || !state.desired[i].lod.eq(indexLOD(lod)) {
		l.lodMap.mu.Unlock()
		return
	}
	prevLoaded := state.loaded
	newLOD := indexLOD(lod)
	state.loaded = &newLOD
	l.lodMap.mu.Unlock()

	if prevLoaded != nil {
		if prevLoaded.Placeholder {
			l.inProgress.Delete(pos)
			l.physics.RemovePlaceholder(pos)
		} else {
			if prevBlock, ok := l.cache.Peek(pos, prevLoaded.Index); ok {
				for _, id := range prevBlock.IDs {
					l.physics.RemoveTerrain(id)
				}
			}
		}
	}
	for i, id := range block.IDs {
		l.physics.InsertTerrain(id, block.Bounds[i])
	}
}

// finestOf returns the finest (most detailed) LOD among desired, or nil if
// desired is empty.
func finestOf(desired []ownerRequest) *LOD {
	if len(desired) == 0 {
		return nil
	}
	best := desired[0].lod
	for _, r := range desired[1:] {
		if r.lod.less(best) {
			best = r.lod
		}
	}
	return &best
}

// Unload removes owner's interest in pos. Physics/placeholder bounds are
// only touched when the block's owner set becomes empty or the finest
// requested LOD actually changes as a result (§4.g, §8.4): an owner whose
// own request was never the installed LOD can unload without disturbing a
// block other owners still want. Mirrors TerrainLoader::unload.
func (l *Loader) Unload(pos terrain.BlockPosition, owner OwnerID) {
	l.lodMap.mu.Lock()
	state, ok := l.lodMap.blocks[pos]
	if !ok {
		l.lodMap.mu.Unlock()
		return
	}
	if i := state.indexOf(owner); i >= 0 {
		state.desired = append(state.desired[:i], state.desired[i+1:]...)
	} else {
		l.lodMap.mu.Unlock()
		return
	}

	oldLoaded := state.loaded
	newFinest := finestOf(state.desired)
	empty := len(state.desired) == 0
	if empty {
		delete(l.lodMap.blocks, pos)
	}

	changed := oldLoaded != nil && (empty || newFinest == nil || !newFinest.eq(*oldLoaded))
	if changed {
		state.loaded = newFinest
	}
	l.lodMap.mu.Unlock()

	if !changed {
		return
	}

	if oldLoaded.Placeholder {
		l.inProgress.Delete(pos)
		l.physics.RemovePlaceholder(pos)
	} else if oldBlock, ok := l.cache.Peek(pos, oldLoaded.Index); ok {
		for _, id := range oldBlock.IDs {
			l.physics.RemoveTerrain(id)
		}
	}

	switch {
	case newFinest == nil:
		// Block set is now empty; nothing more to install.
	case newFinest.Placeholder:
		l.inProgress.Store(pos, struct{}{})
		l.physics.InsertPlaceholder(pos)
	default:
		if block, ok := l.cache.Peek(pos, newFinest.Index); ok {
			for i, id := range block.IDs {
				l.physics.InsertTerrain(id, block.Bounds[i])
			}
		}
	}
}
