package workbus

import (
	"testing"

	"terrainengine/internal/terrain"

	"github.com/stretchr/testify/require"
)

func TestBrushAlwaysBeatsLoad(t *testing.T) {
	b := New()
	b.Push(Item{Kind: KindLoad, Reason: ReasonLocal})
	b.Push(Item{Kind: KindBrush})

	item, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, KindBrush, item.Kind)
}

func TestClientLoadBeatsLocalLoad(t *testing.T) {
	b := New()
	b.Push(Item{Kind: KindLoad, Reason: ReasonLocal, Position: terrain.BlockPosition{X: 1}})
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 5, Position: terrain.BlockPosition{X: 2}})

	item, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, ReasonClient, item.Reason)
}

func TestClientLoadsOrderedByAscendingPriority(t *testing.T) {
	b := New()
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 9, Position: terrain.BlockPosition{X: 1}})
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 1, Position: terrain.BlockPosition{X: 2}})

	item, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(1), item.Priority)
}

func TestSecondEnqueueReplacesFirst(t *testing.T) {
	b := New()
	pos := terrain.BlockPosition{X: 1, Y: 2, Z: 3}
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 9, Position: pos, LOD: 0})
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 1, Position: pos, LOD: 0})

	require.Equal(t, 1, b.Len())
	item, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(1), item.Priority)
}

// TestEqualPriorityClientLoadsAreFIFO mirrors §4.i/§8.5's tie-breaking rule:
// among ReasonClient items at the same priority, the one pushed first must
// come out first.
func TestEqualPriorityClientLoadsAreFIFO(t *testing.T) {
	b := New()
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 5, Position: terrain.BlockPosition{X: 1}})
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 5, Position: terrain.BlockPosition{X: 2}})
	b.Push(Item{Kind: KindLoad, Reason: ReasonClient, Priority: 5, Position: terrain.BlockPosition{X: 3}})

	first, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, int32(1), first.Position.X)

	second, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, int32(2), second.Position.X)

	third, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, int32(3), third.Position.X)
}

func TestPopBlocksUntilClose(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		_, ok := b.Pop()
		require.False(t, ok)
		close(done)
	}()
	b.Close()
	<-done
}
