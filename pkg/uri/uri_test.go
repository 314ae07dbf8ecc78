package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResourceIsUnique(t *testing.T) {
	a := NewResource()
	b := NewResource()
	assert.NotEqual(t, a, b)
	assert.True(t, IsResource(a))
	assert.False(t, IsGraph(a))
}

func TestNewGraphIsUnique(t *testing.T) {
	a := NewGraph()
	b := NewGraph()
	assert.NotEqual(t, a, b)
	assert.True(t, IsGraph(a))
	assert.False(t, IsResource(a))
}

func TestIsBlankNode(t *testing.T) {
	assert.True(t, IsBlankNode("_:b0"))
	assert.False(t, IsBlankNode("nepomuk:/res/x"))
	assert.False(t, IsBlankNode(""))
	assert.False(t, IsBlankNode("_"))
}

func TestIsResourceRejectsUnrelatedURIs(t *testing.T) {
	assert.False(t, IsResource("http://example.org/x"))
	assert.False(t, IsResource(resourcePrefix), "the bare prefix names nothing")
}
