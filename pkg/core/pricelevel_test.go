package core

import (
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLevel(ids ...string) (*PriceLevel, map[string]handle) {
	arena := newOrderArena()
	level := newPriceLevel(arena, fpdecimal.FromInt(100))
	handles := make(map[string]handle, len(ids))
	for i, id := range ids {
		h := arena.alloc(id, int64(10*(i+1)), 0, level.Price())
		level.Append(h)
		handles[id] = h
	}
	return level, handles
}

func TestPriceLevelAppendKeepsArrivalOrder(t *testing.T) {
	level, _ := newTestLevel("a", "b", "c")

	assert.Equal(t, []string{"a", "b", "c"}, level.orderIDs())
	assert.Equal(t, 3, level.Len())
	assert.Equal(t, int64(60), level.TotalRemainingQuantity())
}

func TestPriceLevelRemove(t *testing.T) {
	tests := []struct {
		name   string
		remove []string
		want   []string
	}{
		{"head", []string{"a"}, []string{"b", "c"}},
		{"middle", []string{"b"}, []string{"a", "c"}},
		{"tail", []string{"c"}, []string{"a", "b"}},
		{"all", []string{"b", "a", "c"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, handles := newTestLevel("a", "b", "c")
			for _, id := range tt.remove {
				level.Remove(handles[id])
			}
			assert.Equal(t, tt.want, level.orderIDs())
			assert.Equal(t, len(tt.want), level.Len())
			assert.Equal(t, len(tt.want) == 0, level.Empty())
		})
	}
}

func TestPriceLevelAppendAfterEmptying(t *testing.T) {
	level, handles := newTestLevel("a")
	level.Remove(handles["a"])
	require.True(t, level.Empty())

	h := level.arena.alloc("b", 5, 2, level.Price())
	level.Append(h)

	assert.Equal(t, []string{"b"}, level.orderIDs())
	assert.Equal(t, int64(3), level.TotalRemainingQuantity())
}

func TestOrderArenaReusesSlots(t *testing.T) {
	arena := newOrderArena()
	price := fpdecimal.FromInt(1)

	a := arena.alloc("a", 1, 0, price)
	b := arena.alloc("b", 1, 0, price)
	arena.release(a)
	c := arena.alloc("c", 1, 0, price)

	assert.Equal(t, a, c)
	assert.NotEqual(t, b, c)
	assert.Equal(t, "c", arena.get(c).id)
	assert.Len(t, arena.nodes, 2)
}
