package cpt

import (
	"context"
	"testing"

	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testNS    = "http://example.org/onto#"
	classA    = testNS + "A"
	classB    = testNS + "B" // subClassOf A
	propTag   = testNS + "tag"
	propMulti = testNS + "multi"
	propRef   = testNS + "ref"
)

// seedEngine populates a fresh memory engine with a small ontology: class B
// is a subclass of A, tag is a literal property with no declared
// cardinality, multi is a literal property with maxCardinality 3, and ref
// is a resource-valued property (range rdfs:Resource).
func seedEngine(t *testing.T) store.Engine {
	t.Helper()
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	const g = "nepomuk:/ctx/onto"

	add := func(s, p string, o store.Term) {
		require.NoError(t, eng.AddStatement(ctx, store.URI(s), p, o, g))
	}

	add(classA, RDFType, store.URI(RDFSClass))
	add(classB, RDFType, store.URI(RDFSClass))
	add(classB, RDFSSubClassOf, store.URI(classA))

	add(propTag, RDFType, store.URI(RDFProperty))
	add(propTag, RDFSRange, store.URI(RDFSLiteral))

	add(propMulti, RDFType, store.URI(RDFProperty))
	add(propMulti, RDFSRange, store.URI(RDFSLiteral))
	add(propMulti, RDFSDomain, store.URI(classA))
	add(propMulti, NRLMaxCardinality, store.Literal("3", XSDString))

	add(propRef, RDFType, store.URI(RDFProperty))
	add(propRef, RDFSRange, store.URI(RDFSResource))

	return eng
}

func TestRebuildClassHierarchy(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	assert.True(t, tree.IsKnownClass(classA))
	assert.True(t, tree.IsKnownClass(classB))
	assert.True(t, tree.IsChildOf(classB, classA))
	assert.True(t, tree.IsChildOf(classB, RDFSResource))
	assert.False(t, tree.IsChildOf(classA, classB))
}

func TestRebuildCardinalityAndRange(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	assert.Equal(t, 3, tree.MaxCardinality(propMulti))
	assert.Equal(t, 0, tree.MaxCardinality(propTag), "undeclared cardinality is unbounded")
	assert.Equal(t, classA, tree.PropertyDomain(propMulti))
	assert.True(t, tree.HasLiteralRange(propTag))
	assert.False(t, tree.HasLiteralRange(propRef), "resource-ranged property is not a literal range")
}

func TestIsDefiningPropertyDefaults(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	assert.True(t, tree.IsDefiningProperty(propTag), "literal-range property defaults to defining")
	assert.False(t, tree.IsDefiningProperty(propRef), "resource-range property is non-defining")
	assert.True(t, tree.IsDefiningProperty("http://example.org/onto#neverDeclared"), "unknown property defaults to defining")
}

func TestVariantListToNodeSetLiteralRange(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	terms, err := tree.VariantListToNodeSet([]any{"hello", "hello", "world"}, propTag)
	require.NoError(t, err)
	assert.Len(t, terms, 2, "duplicate values collapse")
	for _, term := range terms {
		assert.Equal(t, store.KindLiteral, term.Kind)
	}
}

func TestVariantListToNodeSetResourceRange(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	terms, err := tree.VariantListToNodeSet([]any{"http://example.org/res/1"}, propRef)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, store.KindURI, terms[0].Kind, "resource-range property coerces to a URI term, not a literal")

	_, err = tree.VariantListToNodeSet([]any{""}, propRef)
	assert.Error(t, err, "empty string is not a valid resource URI")
}

func TestVariantToNodeAbstractProperty(t *testing.T) {
	eng := seedEngine(t)
	tree := New()
	require.NoError(t, tree.Rebuild(context.Background(), eng))

	_, err := tree.VariantToNode("x", "http://example.org/onto#undeclared")
	assert.Error(t, err)
}
