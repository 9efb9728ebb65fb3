// Package server wires the terrain subsystem's components into the
// process that owns truth: it listens for client datagrams, multiplexes
// per-client LOD requests through the loader, drives the gaia (generation)
// thread off the work bus, and broadcasts brush edits and the day/night
// cycle back out. Grounded in shape on the teacher's New/registerHandlers/
// Run structure (original internal/server/server.go), repointed at terrain
// rather than entities/migration/pathfinding.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"terrainengine/internal/config"
	"terrainengine/internal/environment"
	"terrainengine/internal/lod"
	"terrainengine/internal/network"
	"terrainengine/internal/physics"
	"terrainengine/internal/terrain"
	"terrainengine/internal/voxelfield"
	"terrainengine/internal/voxeltree"
	"terrainengine/internal/workbus"

	"gonum.org/v1/gonum/spatial/r3"
)

// localOwner is the LOD loader owner id the server's own background
// surroundings loading (tickLocalSurroundings) uses. Connected clients are owned under their
// allocated client id instead, which is always >= 1.
const localOwner lod.OwnerID = 0

// brushWork is the domain payload workbus.Item.Brush carries for
// Kind==KindBrush: the mosaic to rewrite with, and the bounds it covers.
// workbus itself stays brush-shape-agnostic (Item.Brush is an interface{}); the server is
// the one place that knows what a brush item actually contains.
type brushWork struct {
	mosaic voxelfield.Mosaic
	bounds voxeltree.Bounds
}

type playerState struct {
	id       uint64
	position [3]float64
}

// clientState is one connected client's terrain-relevant bookkeeping: the
// owner id it requests blocks under, the players it has added, and its own
// surroundings loader (each client's view follows its own focus point,
// independent of the server's background one).
type clientState struct {
	addr         string
	owner        lod.OwnerID
	surroundings *lod.SurroundingsLoader
	players      map[uint64]*playerState
}

// Server owns every terrain component and the UDP listener that drives
// them. Mutex acquisition order when a handler needs more than one of
// these is: lodMap (inside loader) -> in_progress
// (inside loader) -> cache -> voxel tree -> physics -> clientsMu. clientsMu
// is never held across a call into loader/cache/physics.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	net     *network.Server
	tree    *voxeltree.Tree
	field   voxelfield.Field
	ids     *terrain.IDAllocator
	cache   *terrain.Cache
	physics *physics.Engine
	loader  *lod.Loader
	bus     *workbus.Bus
	env     *environment.Environment

	local        *lod.SurroundingsLoader
	localPending []lod.Delta

	clientsMu  sync.Mutex
	clients    map[string]*clientState // keyed by UDP addr string
	byClientID map[uint64]*clientState
	nextClient atomic.Uint64
	nextPlayer atomic.Uint64
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logger := log.New(log.Writer(), "terrain-server ", log.LstdFlags|log.Lmicroseconds)
	netSrv, err := network.Listen(cfg.Network.ListenUDP, logger, cfg.Network.MaxDatagramSizeBytes)
	if err != nil {
		return nil, err
	}

	tree := voxeltree.NewTree(int8(cfg.Chunk.InitialTreeLg))
	field := voxelfield.NewHeightmap(
		cfg.Terrain.Seed,
		cfg.Terrain.BaseHeight,
		cfg.Terrain.Amplitude,
		cfg.Terrain.Frequency,
		cfg.Terrain.Octaves,
		cfg.Terrain.Lacunarity,
		cfg.Terrain.Persistence,
		voxelfield.Material(1),
	)
	ids := &terrain.IDAllocator{}
	cache := terrain.NewCache(tree, field, ids)
	eng := physics.NewEngine()
	loader := lod.NewLoader(cache, eng)
	env := environment.New(environment.Config{
		DayLength: cfg.Environment.DayLength,
		Seed:      cfg.Environment.Seed,
	})

	srv := &Server{
		cfg:        cfg,
		logger:     logger,
		net:        netSrv,
		tree:       tree,
		field:      field,
		ids:        ids,
		cache:      cache,
		physics:    eng,
		loader:     loader,
		bus:        workbus.New(),
		env:        env,
		local:      lod.NewSurroundingsLoader(cfg.LOD.Thresholds),
		clients:    make(map[string]*clientState),
		byClientID: make(map[uint64]*clientState),
	}
	srv.nextClient.Store(1) // client id 0 is reserved for localOwner
	srv.registerHandlers()
	return srv, nil
}

// registerHandlers wires every client->server message this subsystem acts
// on. RotatePlayer/StartJump/StopJump are part of the wire protocol but
// drive the movement/physics-tick system the spec places out of scope
// (§1): network.Server silently drops messages with no registered handler,
// so they are deliberately left unregistered here rather than stubbed.
func (s *Server) registerHandlers() {
	s.net.Register(network.MessageInit, s.onInit)
	s.net.Register(network.MessagePing, s.onPing)
	s.net.Register(network.MessageAddPlayer, s.onAddPlayer)
	s.net.Register(network.MessageWalk, s.onWalk)
	s.net.Register(network.MessageRequestBlock, s.onRequestBlock)
	s.net.Register(network.MessageAdd, s.onAdd)
	s.net.Register(network.MessageRemove, s.onRemove)
}

// Run starts the network, gaia, and environment loops and blocks until ctx
// is done or the network server fails. Mirrors the teacher's Run: a
// cancelable sub-context, a background Serve goroutine, and a select loop
// over periodic work.
func (s *Server) Run(ctx context.Context) error {
	defer s.net.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.net.Serve(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("network server stopped: %v", err)
			cancel()
		}
	}()

	workers := s.cfg.Server.WorkBusWorkers
	if workers <= 0 {
		workers = 1
	}
	var gaia sync.WaitGroup
	gaia.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer gaia.Done()
			s.gaiaLoop(ctx)
		}()
	}
	defer func() {
		s.bus.Close()
		gaia.Wait()
	}()

	tickRate := s.cfg.Server.TickRate
	if tickRate <= 0 {
		tickRate = 33 * time.Millisecond
	}
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	sunTicker := time.NewTicker(time.Second)
	defer sunTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tickLocalSurroundings()
		case <-sunTicker.C:
			s.tickEnvironment(time.Second)
		}
	}
}

// tickLocalSurroundings drains up to BlockLoadSpeed pending local-owner
// deltas per tick, refilling from the surroundings loader once drained.
// Matches §5's backpressure note: the surroundings loader's output is
// throttled to a bounded number of updates per tick.
func (s *Server) tickLocalSurroundings() {
	if len(s.localPending) == 0 {
		s.localPending = s.local.Update(terrain.BlockPosition{})
	}
	speed := s.cfg.LOD.BlockLoadSpeed
	if speed <= 0 {
		speed = len(s.localPending)
	}
	n := speed
	if n > len(s.localPending) {
		n = len(s.localPending)
	}
	batch := s.localPending[:n]
	s.localPending = s.localPending[n:]

	for _, d := range batch {
		if d.Unload {
			s.loader.Unload(d.Position, localOwner)
			continue
		}
		s.loader.Load(d.Position, lod.LOD{Index: d.LOD}, localOwner, s.issueLocalLoad)
	}
}

func (s *Server) tickEnvironment(delta time.Duration) {
	s.env.Step(delta)
	s.broadcast(network.MessageUpdateSun, network.UpdateSun{Fraction: s.env.SunAngle()})
}

// issueLocalLoad enqueues a background (non-client) load on the work bus.
func (s *Server) issueLocalLoad(pos terrain.BlockPosition, lodIdx terrain.LODIndex, owner lod.OwnerID) {
	s.bus.Push(workbus.Item{
		Kind:     workbus.KindLoad,
		Position: pos,
		LOD:      lodIdx,
		Reason:   workbus.ReasonLocal,
	})
}

// issueClientLoad enqueues a client-requested load at the client-supplied
// priority.
func (s *Server) issueClientLoad(clientID uint64, priority uint16) lod.LoadBlock {
	return func(pos terrain.BlockPosition, lodIdx terrain.LODIndex, owner lod.OwnerID) {
		s.bus.Push(workbus.Item{
			Kind:     workbus.KindLoad,
			Position: pos,
			LOD:      lodIdx,
			Reason:   workbus.ReasonClient,
			ClientID: clientID,
			Priority: priority,
		})
	}
}

// gaiaLoop is the generation thread (§4.i): it pops the highest-priority
// item off the bus and performs the (total, never-failing) generation or
// brush work, then routes the result back to the loader and, for
// client-reason loads, out to the network.
func (s *Server) gaiaLoop(ctx context.Context) {
	for {
		item, ok := s.bus.Pop()
		if !ok {
			return
		}
		switch item.Kind {
		case workbus.KindBrush:
			bw, ok := item.Brush.(brushWork)
			if !ok {
				s.logger.Printf("dropping malformed brush work item")
				continue
			}
			s.cache.Brush(bw.mosaic, bw.bounds, s.broadcastBlockChange)
		case workbus.KindLoad:
			block := s.cache.Load(item.Position, item.LOD)
			switch item.Reason {
			case workbus.ReasonLocal:
				s.loader.InsertBlock(block, item.Position, item.LOD, localOwner)
			case workbus.ReasonClient:
				owner := lod.OwnerID(item.ClientID)
				s.loader.InsertBlock(block, item.Position, item.LOD, owner)
				s.sendBlockToClientID(item.ClientID, item.Position, item.LOD, block)
			}
		}
	}
}

// broadcastBlockChange is the Terrain.brush change callback (§4.e): every
// client mirror applies its own distance/LOD gate on receipt (§4.j), so
// broadcasting unconditionally here is safe — a send outside some client's
// window is simply dropped there.
func (s *Server) broadcastBlockChange(block *terrain.TerrainBlock, pos terrain.BlockPosition, lodIdx terrain.LODIndex) {
	lazy, err := network.NewLazyBlock(block)
	if err != nil {
		s.logger.Printf("encode changed block %v: %v", pos, err)
		return
	}
	payload := network.TerrainBlockSend{Position: pos, LOD: lodIdx, Block: lazy}
	s.broadcast(network.MessageBlock, payload)
}

func (s *Server) sendBlockToClientID(clientID uint64, pos terrain.BlockPosition, lodIdx terrain.LODIndex, block *terrain.TerrainBlock) {
	s.clientsMu.Lock()
	client, ok := s.byClientID[clientID]
	s.clientsMu.Unlock()
	if !ok {
		return // client disconnected before generation finished; drop (§7 stale work)
	}
	s.sendBlock(client.addr, pos, lodIdx, block)
}

func (s *Server) sendBlock(addr string, pos terrain.BlockPosition, lodIdx terrain.LODIndex, block *terrain.TerrainBlock) {
	lazy, err := network.NewLazyBlock(block)
	if err != nil {
		s.logger.Printf("encode block %v: %v", pos, err)
		return
	}
	payload := network.TerrainBlockSend{Position: pos, LOD: lodIdx, Block: lazy}
	if err := s.net.Send(addr, network.MessageBlock, payload); err != nil {
		s.logger.Printf("send block to %s: %v", addr, err)
	}
}

func (s *Server) broadcast(msg network.MessageType, payload any) {
	s.clientsMu.Lock()
	addrs := make([]string, 0, len(s.clients))
	for addr := range s.clients {
		addrs = append(addrs, addr)
	}
	s.clientsMu.Unlock()

	for _, addr := range addrs {
		if err := s.net.Send(addr, msg, payload); err != nil {
			s.logger.Printf("broadcast %s to %s: %v", msg, addr, err)
		}
	}
}

func (s *Server) clientFor(addr *net.UDPAddr) *clientState {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return s.clients[addr.String()]
}

func (s *Server) onInit(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.Init
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode init from %s: %v", addr, err)
		return
	}

	key := addr.String()
	s.clientsMu.Lock()
	client, exists := s.clients[key]
	if !exists {
		clientID := s.nextClient.Add(1) - 1
		client = &clientState{
			addr:         key,
			owner:        lod.OwnerID(clientID),
			surroundings: lod.NewSurroundingsLoader(s.cfg.LOD.Thresholds),
			players:      make(map[uint64]*playerState),
		}
		s.clients[key] = client
		s.byClientID[clientID] = client
	}
	s.clientsMu.Unlock()

	if err := s.net.Send(key, network.MessageLeaseID, network.LeaseID{ClientID: uint64(client.owner)}); err != nil {
		s.logger.Printf("send lease id to %s: %v", addr, err)
	}
}

func (s *Server) onPing(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	if err := s.net.Send(addr.String(), network.MessageServerPing, network.Ping{}); err != nil {
		s.logger.Printf("send ping reply to %s: %v", addr, err)
	}
}

func (s *Server) onAddPlayer(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.AddPlayer
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode addPlayer from %s: %v", addr, err)
		return
	}
	client := s.clientFor(addr)
	if client == nil {
		return
	}

	playerID := s.nextPlayer.Add(1)
	player := &playerState{id: playerID}

	s.clientsMu.Lock()
	client.players[playerID] = player
	s.clientsMu.Unlock()

	const playerHalfExtent = 0.4
	s.physics.InsertMisc(physics.MiscID(playerID), terrain.AABB{
		Min: [3]float64{-playerHalfExtent, -playerHalfExtent, -playerHalfExtent},
		Max: [3]float64{playerHalfExtent, playerHalfExtent, playerHalfExtent},
	})

	if err := s.net.Send(client.addr, network.MessagePlayerAdded, network.PlayerAdded{
		PlayerID: playerID,
		Position: player.position,
	}); err != nil {
		s.logger.Printf("send playerAdded to %s: %v", addr, err)
	}

	s.refreshClientSurroundings(client, player.position)
}

func (s *Server) onWalk(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.Walk
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode walk from %s: %v", addr, err)
		return
	}
	client := s.clientFor(addr)
	if client == nil {
		return
	}

	s.clientsMu.Lock()
	player, ok := client.players[payload.PlayerID]
	s.clientsMu.Unlock()
	if !ok {
		return
	}

	tickRate := s.cfg.Server.TickRate
	if tickRate <= 0 {
		tickRate = 33 * time.Millisecond
	}
	scale := tickRate.Seconds()
	delta := [3]float64{
		payload.Velocity[0] * scale,
		payload.Velocity[1] * scale,
		payload.Velocity[2] * scale,
	}

	if collision := s.physics.TranslateMisc(physics.MiscID(payload.PlayerID), delta); collision != nil {
		return // move refused; client keeps its last acknowledged position
	}

	s.clientsMu.Lock()
	player.position[0] += delta[0]
	player.position[1] += delta[1]
	player.position[2] += delta[2]
	pos := player.position
	s.clientsMu.Unlock()

	if err := s.net.Send(client.addr, network.MessageUpdatePlayer, network.UpdatePlayer{
		PlayerID: payload.PlayerID,
		Position: pos,
		Velocity: payload.Velocity,
	}); err != nil {
		s.logger.Printf("send updatePlayer to %s: %v", addr, err)
	}

	s.refreshClientSurroundings(client, pos)
}

// refreshClientSurroundings re-centers a client's surroundings loader on
// its player's current block position and drains the resulting deltas
// immediately (§4.h: clients throttle consumption, but the server itself
// issues every delta it emits — the bus and dedup handle the rest).
func (s *Server) refreshClientSurroundings(client *clientState, worldPos [3]float64) {
	blockWidth := float64(int32(1) << uint(s.cfg.Chunk.BlockWidthLog2))
	focus := terrain.BlockPosition{
		X: int32(math.Floor(worldPos[0] / blockWidth)),
		Y: int32(math.Floor(worldPos[1] / blockWidth)),
		Z: int32(math.Floor(worldPos[2] / blockWidth)),
	}
	for _, d := range client.surroundings.Update(focus) {
		if d.Unload {
			s.loader.Unload(d.Position, client.owner)
			continue
		}
		s.loader.Load(d.Position, lod.LOD{Index: d.LOD}, client.owner, s.issueClientLoad(uint64(client.owner), 0))
	}
}

func (s *Server) onRequestBlock(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.RequestBlock
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode requestBlock from %s: %v", addr, err)
		return
	}
	client := s.clientFor(addr)
	if client == nil {
		return
	}

	s.loader.Load(payload.Position, lod.LOD{Index: payload.LOD}, client.owner, s.issueClientLoad(uint64(client.owner), payload.Priority))

	// Covers the case where loader.Load found an already-cached mesh and
	// installed it synchronously (§4.g step 4): that path never calls the
	// loadBlock callback, so the client would otherwise never be told.
	if block, ok := s.cache.Peek(payload.Position, payload.LOD); ok {
		s.sendBlock(client.addr, payload.Position, payload.LOD, block)
	}
}

func (s *Server) onAdd(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.Add
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode add from %s: %v", addr, err)
		return
	}
	sphere := voxelfield.Sphere{
		Center: r3.Vec{X: payload.Center[0], Y: payload.Center[1], Z: payload.Center[2]},
		Radius: payload.Radius,
		Mat:    voxelfield.Material(payload.Material),
	}
	s.enqueueBrush(voxelfield.Mosaic{Field: sphere}, payload.Center, payload.Radius)
}

func (s *Server) onRemove(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var payload network.Remove
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Printf("decode remove from %s: %v", addr, err)
		return
	}
	sphere := voxelfield.Sphere{
		Center: r3.Vec{X: payload.Center[0], Y: payload.Center[1], Z: payload.Center[2]},
		Radius: payload.Radius,
		Mat:    voxelfield.NoMaterial,
	}
	s.enqueueBrush(voxelfield.Mosaic{Field: sphere}, payload.Center, payload.Radius)
}

func (s *Server) enqueueBrush(mosaic voxelfield.Mosaic, center [3]float64, radius float64) {
	s.bus.Push(workbus.Item{
		Kind:  workbus.KindBrush,
		Brush: brushWork{mosaic: mosaic, bounds: enclosingBounds(center, radius)},
	})
}

// enclosingBounds returns the smallest power-of-two-sized cube, aligned to
// its own size, that contains the ball of radius around center — the
// region a spherical brush's edit can possibly reach.
func enclosingBounds(center [3]float64, radius float64) voxeltree.Bounds {
	var lg int8
	for float64(int64(1)<<uint(lg)) < radius*2+1 {
		lg++
	}
	size := float64(int64(1) << uint(lg))
	return voxeltree.Bounds{
		X:      int32(math.Floor(center[0] / size)),
		Y:      int32(math.Floor(center[1] / size)),
		Z:      int32(math.Floor(center[2] / size)),
		LgSize: lg,
	}
}
