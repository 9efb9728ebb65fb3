package physics

import (
	"testing"

	"terrainengine/internal/terrain"

	"github.com/stretchr/testify/require"
)

func TestEngineInsertRemoveTerrain(t *testing.T) {
	e := NewEngine()
	e.InsertTerrain(terrain.EntityID(1), terrain.AABB{})
	require.Equal(t, 1, e.TerrainCount())
	e.RemoveTerrain(terrain.EntityID(1))
	require.Equal(t, 0, e.TerrainCount())
}

func TestEnginePlaceholders(t *testing.T) {
	e := NewEngine()
	pos := terrain.BlockPosition{X: 1, Y: 2, Z: 3}
	require.False(t, e.HasPlaceholder(pos))
	e.InsertPlaceholder(pos)
	require.True(t, e.HasPlaceholder(pos))
	e.RemovePlaceholder(pos)
	require.False(t, e.HasPlaceholder(pos))
}

func TestTranslateMiscSucceedsWithoutCollision(t *testing.T) {
	e := NewEngine()
	e.InsertMisc(MiscID(1), terrain.AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}})

	collision := e.TranslateMisc(MiscID(1), [3]float64{10, 0, 0})
	require.Nil(t, collision)
}

func TestTranslateMiscRefusedOnTerrainCollision(t *testing.T) {
	e := NewEngine()
	e.InsertMisc(MiscID(1), terrain.AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}})
	e.InsertTerrain(terrain.EntityID(7), terrain.AABB{Min: [3]float64{5, 0, 0}, Max: [3]float64{6, 1, 1}})

	collision := e.TranslateMisc(MiscID(1), [3]float64{5, 0, 0})
	require.NotNil(t, collision)
	require.Equal(t, terrain.EntityID(7), collision.OtherID)
}

func TestTranslateMiscUnknownIDIsNoop(t *testing.T) {
	e := NewEngine()
	require.Nil(t, e.TranslateMisc(MiscID(99), [3]float64{1, 0, 0}))
}
