package railgraph

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeQueue_PopsInPriorityOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	q := newNodeQueue()
	var want []float64
	for id := int64(0); id < 200; id++ {
		p := rng.Float64() * 1000
		want = append(want, p)
		assert.True(t, q.push(id, p))
	}
	sort.Float64s(want)

	var got []float64
	for q.Len() > 0 {
		_, p := q.pop()
		got = append(got, p)
	}
	assert.Equal(t, want, got)
}

func TestNodeQueue_DecreaseKey(t *testing.T) {
	q := newNodeQueue()
	q.push(1, 10)
	q.push(2, 20)
	q.push(3, 30)

	assert.True(t, q.push(3, 5), "lower priority moves the entry")
	assert.False(t, q.push(1, 15), "higher priority is ignored")
	assert.Equal(t, 3, q.Len())

	id, p := q.pop()
	assert.Equal(t, int64(3), id)
	assert.Equal(t, 5.0, p)
	assert.False(t, q.contains(3))

	id, _ = q.pop()
	assert.Equal(t, int64(1), id)
	id, _ = q.pop()
	assert.Equal(t, int64(2), id)
}
