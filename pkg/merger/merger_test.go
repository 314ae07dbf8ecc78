package merger

import (
	"context"
	"testing"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/graphregistry"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	classA    = "http://example.org/onto#A"
	singleVal = "http://example.org/onto#single"
	freeProp  = "http://example.org/onto#free"
)

// newFixture builds a tree with one domain-restricted, single-valued
// property and one unconstrained property, plus a registry and merger over
// a fresh memory engine.
func newFixture(t *testing.T) (*cpt.Tree, *graphregistry.Registry, *Merger, store.Engine) {
	t.Helper()
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	const g = "nepomuk:/ctx/onto"

	add := func(s, p string, o store.Term) {
		require.NoError(t, eng.AddStatement(ctx, store.URI(s), p, o, g))
	}
	add(classA, cpt.RDFType, store.URI(cpt.RDFSClass))
	add(singleVal, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(singleVal, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))
	add(singleVal, cpt.RDFSDomain, store.URI(classA))
	add(singleVal, cpt.NRLMaxCardinality, store.Literal("1", cpt.XSDString))
	add(freeProp, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(freeProp, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))

	tree := cpt.New()
	require.NoError(t, tree.Rebuild(ctx, eng))
	registry := graphregistry.New(eng)
	return tree, registry, New(tree, registry), eng
}

func beginTx(t *testing.T, eng store.Engine) store.Transaction {
	t.Helper()
	tx, err := eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func TestMergeRejectsEmptyApp(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	err := m.Merge(context.Background(), tx, []Quad{{Subject: "s", Predicate: freeProp, Object: store.Literal("v", "")}}, nil, Options{})
	require.Error(t, err)
	assert.Equal(t, nepomukerr.InvalidArgument, nepomukerr.KindOf(err))
}

func TestMergeWritesThroughRegistry(t *testing.T) {
	_, registry, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	quads := []Quad{{Subject: "nepomuk:/res/1", Predicate: freeProp, Object: store.Literal("v", "")}}
	require.NoError(t, m.Merge(context.Background(), tx, quads, nil, Options{App: "app-a"}))

	agents, ok := registry.AgentsOf(mustGraph(t, tx, "nepomuk:/res/1", freeProp))
	require.True(t, ok)
	assert.Equal(t, []string{"app-a"}, agents)
}

func mustGraph(t *testing.T, tx store.Transaction, subj, pred string) string {
	t.Helper()
	s := store.URI(subj)
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &pred})
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Next())
	return it.Quad().Graph
}

func TestMergeEnforcesDomain(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	// subject has no types at all, so the domain check on singleVal fails.
	quads := []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v", "")}}
	err := m.Merge(context.Background(), tx, quads, map[string][]string{}, Options{App: "app-a"})
	require.Error(t, err)
	assert.Equal(t, nepomukerr.InvalidArgument, nepomukerr.KindOf(err))
}

func TestMergeSingleValuedRejectsSecondValue(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	types := map[string][]string{"nepomuk:/res/1": {classA}}

	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v1", "")}}, types, Options{App: "app-a"}))

	err := m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v2", "")}}, types, Options{App: "app-a"})
	require.Error(t, err)
	assert.Equal(t, nepomukerr.CardinalityExceeded, nepomukerr.KindOf(err))
}

func TestMergeSingleValuedSameValueIsNoop(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	types := map[string][]string{"nepomuk:/res/1": {classA}}

	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v1", "")}}, types, Options{App: "app-a"}))
	err := m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v1", "")}}, types, Options{App: "app-a"})
	assert.NoError(t, err)
}

func TestMergeSingleValuedOverwriteReplaces(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)
	types := map[string][]string{"nepomuk:/res/1": {classA}}

	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v1", "")}}, types, Options{App: "app-a"}))
	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: singleVal, Object: store.Literal("v2", "")}}, types, Options{App: "app-a", Overwrite: true}))

	s := store.URI("nepomuk:/res/1")
	pred := singleVal
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &pred})
	require.NoError(t, err)
	defer it.Close()
	var values []string
	for it.Next() {
		values = append(values, it.Quad().Object.Value)
	}
	assert.Equal(t, []string{"v2"}, values)
}

func TestMergeURLUniquenessRejectsCollision(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)

	url := store.URI("file:///tmp/shared")
	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: nieURL, Object: url}}, nil, Options{App: "app-a"}))

	err := m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/2", Predicate: nieURL, Object: url}}, nil, Options{App: "app-a"})
	require.Error(t, err)
	assert.Equal(t, nepomukerr.UniquenessViolation, nepomukerr.KindOf(err))
}

func TestMergeURLUniquenessAllowsSameSubject(t *testing.T) {
	_, _, m, eng := newFixture(t)
	tx := beginTx(t, eng)

	url := store.URI("file:///tmp/shared")
	require.NoError(t, m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: nieURL, Object: url}}, nil, Options{App: "app-a"}))
	err := m.Merge(context.Background(), tx, []Quad{{Subject: "nepomuk:/res/1", Predicate: nieURL, Object: url}}, nil, Options{App: "app-a"})
	assert.NoError(t, err)
}
