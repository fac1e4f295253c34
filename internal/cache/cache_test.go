package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string, int]()

	_, ok := m.Get(ctx, "a")
	assert.False(t, ok)

	m.Put(ctx, "a", 1)
	m.Put(ctx, "a", 2)
	v, ok := m.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, m.Len())
}

func TestTiered(t *testing.T) {
	ctx := context.Background()
	first := NewMemory[string, string]()
	second := NewMemory[string, string]()
	tiered := NewTiered[string, string](first, second)

	second.Put(ctx, "shared", "value")
	v, ok := tiered.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	copied, ok := first.Get(ctx, "shared")
	assert.True(t, ok, "second tier hits are copied into the first")
	assert.Equal(t, "value", copied)

	tiered.Put(ctx, "new", "x")
	_, ok = first.Get(ctx, "new")
	assert.True(t, ok)
	_, ok = second.Get(ctx, "new")
	assert.True(t, ok)

	_, ok = tiered.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestGzipRoundTrip(t *testing.T) {
	data := []byte(`{"from":"UT","to":"ASD","points":[{"lat":52.0,"lon":5.0}]}`)
	compressed, err := gzipCompress(data)
	require.NoError(t, err)

	decompressed, err := gzipDecompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, decompressed)

	_, err = gzipDecompress([]byte("not gzip"))
	assert.Error(t, err)
}

func TestKeyRailway(t *testing.T) {
	assert.Equal(t, "railway:UT:ASD", KeyRailway("UT", "ASD"))
}
