package network

import (
	"testing"

	"terrainengine/internal/terrain"

	"github.com/stretchr/testify/require"
)

func TestLazyBlockDecodesOnce(t *testing.T) {
	block := &terrain.TerrainBlock{Materials: []uint16{1, 2, 3}}
	lazy, err := NewLazyBlock(block)
	require.NoError(t, err)

	decoded, err := lazy.Decode()
	require.NoError(t, err)
	require.Equal(t, block.Materials, decoded.Materials)

	again, err := lazy.Decode()
	require.NoError(t, err)
	require.Same(t, decoded, again)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	lazy, err := NewLazyBlock(&terrain.TerrainBlock{Materials: []uint16{9}})
	require.NoError(t, err)
	send := TerrainBlockSend{Position: terrain.BlockPosition{X: 1}, LOD: 2, Block: lazy}
	raw, err := jsonMarshal(send)
	require.NoError(t, err)

	env := Envelope{Type: MessageBlock, Payload: raw}
	encoded, err := Encode(env)
	require.NoError(t, err)

	decodedEnv, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, MessageBlock, decodedEnv.Type)
}
