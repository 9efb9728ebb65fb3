package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"terrainengine/internal/terrain"
)

type MessageType string

// Client -> Server messages (§6).
const (
	MessageInit         MessageType = "init"
	MessagePing         MessageType = "ping"
	MessageAddPlayer    MessageType = "addPlayer"
	MessageWalk         MessageType = "walk"
	MessageRotatePlayer MessageType = "rotatePlayer"
	MessageStartJump    MessageType = "startJump"
	MessageStopJump     MessageType = "stopJump"
	MessageRequestBlock MessageType = "requestBlock"
	MessageAdd          MessageType = "add"
	MessageRemove       MessageType = "remove"
)

// Server -> Client messages (§6).
const (
	MessageLeaseID     MessageType = "leaseId"
	MessageServerPing  MessageType = "serverPing"
	MessagePlayerAdded MessageType = "playerAdded"
	MessageUpdatePlayer MessageType = "updatePlayer"
	MessageUpdateMob   MessageType = "updateMob"
	MessageUpdateSun   MessageType = "updateSun"
	MessageBlock       MessageType = "block"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// --- Client -> Server payloads ---

type Init struct {
	ClientVersion string `json:"clientVersion"`
}

type Ping struct{}

type AddPlayer struct {
	Name string `json:"name"`
}

type Walk struct {
	PlayerID uint64     `json:"playerId"`
	Velocity [3]float64 `json:"velocity"`
}

type RotatePlayer struct {
	PlayerID uint64  `json:"playerId"`
	YawDelta float64 `json:"yawDelta"`
	PitchDelta float64 `json:"pitchDelta"`
}

type StartJump struct {
	PlayerID uint64 `json:"playerId"`
}

type StopJump struct {
	PlayerID uint64 `json:"playerId"`
}

type RequestBlock struct {
	Position terrain.BlockPosition `json:"position"`
	LOD      terrain.LODIndex      `json:"lod"`
	Priority uint16                `json:"priority"`
}

type Add struct {
	Center   [3]float64 `json:"center"`
	Radius   float64    `json:"radius"`
	Material uint16     `json:"material"`
}

type Remove struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

// --- Server -> Client payloads ---

type LeaseID struct {
	ClientID uint64 `json:"clientId"`
}

type PlayerAdded struct {
	PlayerID uint64     `json:"playerId"`
	Position [3]float64 `json:"position"`
}

type UpdatePlayer struct {
	PlayerID uint64     `json:"playerId"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
}

type UpdateMob struct {
	MobID    uint64     `json:"mobId"`
	Position [3]float64 `json:"position"`
}

// UpdateSun carries the sun's position in its daily cycle as a fraction in
// [0, 1), matching environment.Environment's SunAngle output.
type UpdateSun struct {
	Fraction float64 `json:"fraction"`
}

// TerrainBlockSend is the server's block payload: the block itself is
// carried as a LazyBlock so a receiver that only forwards it (rather than
// rendering it) never pays the decode cost. Mirrors
// common/serialize/src/lazy.rs via internal/network.LazyBlock.
type TerrainBlockSend struct {
	Position terrain.BlockPosition `json:"position"`
	LOD      terrain.LODIndex      `json:"lod"`
	Block    LazyBlock             `json:"block"`
}

// LazyBlock wraps an encoded TerrainBlock so the receive loop never decodes
// it until something actually asks for the decoded form; decode happens at
// most once, concurrency-safely, via sync.Once.
type LazyBlock struct {
	raw     []byte
	once    sync.Once
	decoded *terrain.TerrainBlock
	err     error
}

func NewLazyBlock(block *terrain.TerrainBlock) (LazyBlock, error) {
	raw, err := json.Marshal(block)
	if err != nil {
		return LazyBlock{}, fmt.Errorf("encode terrain block: %w", err)
	}
	return LazyBlock{raw: raw}, nil
}

// Decode forces the lazy payload, decoding it exactly once even if called
// concurrently from multiple goroutines.
func (b *LazyBlock) Decode() (*terrain.TerrainBlock, error) {
	b.once.Do(func() {
		var block terrain.TerrainBlock
		if err := json.Unmarshal(b.raw, &block); err != nil {
			b.err = fmt.Errorf("decode terrain block: %w", err)
			return
		}
		b.decoded = &block
	})
	return b.decoded, b.err
}

func (b LazyBlock) MarshalJSON() ([]byte, error) {
	if b.raw == nil {
		return []byte("null"), nil
	}
	return b.raw, nil
}

func (b *LazyBlock) UnmarshalJSON(data []byte) error {
	raw := make([]byte, len(data))
	copy(raw, data)
	b.raw = raw
	b.once = sync.Once{}
	b.decoded = nil
	b.err = nil
	return nil
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
