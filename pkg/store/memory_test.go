package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTerm(t Term) *Term     { return &t }
func ptrString(s string) *string { return &s }

func TestAddAndListStatements(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s1"), "p1", URI("o1"), "g1"))
	require.NoError(t, eng.AddStatement(ctx, URI("s1"), "p1", URI("o2"), "g1"))
	require.NoError(t, eng.AddStatement(ctx, URI("s2"), "p1", URI("o1"), "g2"))

	it, err := eng.ListStatements(ctx, Pattern{Subject: ptrTerm(URI("s1"))})
	require.NoError(t, err)
	defer it.Close()

	var got []Quad
	for it.Next() {
		got = append(got, it.Quad())
	}
	require.NoError(t, it.Err())
	assert.Len(t, got, 2)
}

func TestContainsStatement(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s"), "p", URI("o"), "g"))

	ok, err := eng.ContainsStatement(ctx, URI("s"), "p", URI("o"), "g")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.ContainsStatement(ctx, URI("s"), "p", Literal("o", ""), "g")
	require.NoError(t, err)
	assert.False(t, ok, "a literal object must not match a URI object of the same lexical value")
}

func TestRemoveStatement(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s"), "p", URI("o"), "g"))
	require.NoError(t, eng.RemoveStatement(ctx, URI("s"), "p", URI("o"), "g"))

	ok, err := eng.ContainsStatement(ctx, URI("s"), "p", URI("o"), "g")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveContext(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s1"), "p", URI("o1"), "g"))
	require.NoError(t, eng.AddStatement(ctx, URI("s2"), "p", URI("o2"), "g"))
	require.NoError(t, eng.AddStatement(ctx, URI("s3"), "p", URI("o3"), "other"))

	require.NoError(t, eng.RemoveContext(ctx, "g"))

	it, err := eng.ListStatements(ctx, Pattern{})
	require.NoError(t, err)
	defer it.Close()
	var n int
	for it.Next() {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestTermEqualityDistinguishesKind(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s"), "nie:url", URI("file:///tmp/a"), "g"))

	lit := Literal("file:///tmp/a", "")
	it, err := eng.ListStatements(ctx, Pattern{Predicate: ptrString("nie:url"), Object: &lit})
	require.NoError(t, err)
	defer it.Close()
	assert.False(t, it.Next(), "a hand-built literal pattern must not match a stored URI term")
}

func TestTransactionReadsThroughPendingWrites(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	require.NoError(t, eng.AddStatement(ctx, URI("s"), "p", URI("o1"), "g"))

	tx, err := eng.BeginTransaction(ctx)
	require.NoError(t, err)

	// Add inside the tx: must be visible to a query on the same tx before
	// commit.
	require.NoError(t, tx.AddStatement(URI("s"), "p", URI("o2"), "g"))
	it, err := tx.ListStatements(Pattern{Subject: ptrTerm(URI("s")), Predicate: ptrString("p")})
	require.NoError(t, err)
	var values []string
	for it.Next() {
		values = append(values, it.Quad().Object.Value)
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.ElementsMatch(t, []string{"o1", "o2"}, values)

	// Remove o1 inside the same tx: a subsequent read sees it gone, even
	// though it is still committed in the underlying engine.
	require.NoError(t, tx.RemoveStatement(URI("s"), "p", URI("o1"), "g"))
	it2, err := tx.ListStatements(Pattern{Subject: ptrTerm(URI("s")), Predicate: ptrString("p")})
	require.NoError(t, err)
	var after []string
	for it2.Next() {
		after = append(after, it2.Quad().Object.Value)
	}
	require.NoError(t, it2.Close())
	assert.Equal(t, []string{"o2"}, after)

	require.NoError(t, tx.Rollback())

	// The engine itself is untouched by the rolled-back transaction.
	ok, err := eng.ContainsStatement(ctx, URI("s"), "p", URI("o1"), "g")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransactionCommit(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	tx, err := eng.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddStatement(URI("s"), "p", URI("o"), "g"))
	require.NoError(t, tx.Commit())

	ok, err := eng.ContainsStatement(ctx, URI("s"), "p", URI("o"), "g")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExecuteQueryAsk(t *testing.T) {
	eng := NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	require.NoError(t, eng.AddStatement(ctx, URI("s"), "p", URI("o"), "g"))

	res, err := eng.ExecuteQuery(ctx, `ASK { ?s <p> ?o . }`, SPARQL)
	require.NoError(t, err)
	assert.True(t, res.IsBoolean)
	assert.True(t, res.Boolean)
}
