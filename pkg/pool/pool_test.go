package pool

import (
	"testing"

	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
)

func TestConfigureTogglesEnabled(t *testing.T) {
	Configure(Config{Enabled: false, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	assert.False(t, IsEnabled())
	q := GetQuadSlice()
	assert.Equal(t, 0, len(q))
	assert.Equal(t, 64, cap(q)) // bypasses the pool entirely when disabled: a fresh slice of the default capacity
}

func TestQuadSliceRoundTrip(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	q := GetQuadSlice()
	assert.Len(t, q, 0)
	q = append(q, store.Quad{Subject: store.URI("a"), Predicate: "p", Object: store.URI("b"), Graph: "g"})
	PutQuadSlice(q)

	q2 := GetQuadSlice()
	assert.Len(t, q2, 0)
}

func TestPutQuadSliceDiscardsOversized(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 2})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	big := make([]store.Quad, 0, 10)
	PutQuadSlice(big) // should not panic, should not be pooled
}

func TestStringSliceRoundTrip(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	s := GetStringSlice()
	s = append(s, "nepomuk:/res/1", "nepomuk:/res/2")
	PutStringSlice(s)

	s2 := GetStringSlice()
	assert.Len(t, s2, 0)
}

func TestByteBufferRoundTrip(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	buf := GetByteBuffer()
	buf = append(buf, []byte(`{"type":"ADD_PROPERTY"}`)...)
	PutByteBuffer(buf)

	buf2 := GetByteBuffer()
	assert.Len(t, buf2, 0)
}
