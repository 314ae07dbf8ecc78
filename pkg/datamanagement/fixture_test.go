package datamanagement

import (
	"context"
	"testing"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/require"
)

// Vocabulary used across these tests, named after the real Nepomuk terms
// the §8 scenarios in the spec refer to.
const (
	naoTagClass       = "http://www.semanticdesktop.org/ontologies/2007/03/22/nao#Tag"
	nfoFileDataObject = "http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#FileDataObject"
	naoHasTag         = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#hasTag"
	ncoEmailAddress   = "http://www.semanticdesktop.org/ontologies/2007/03/22/nco#emailAddress"
	ncoFullname       = "http://www.semanticdesktop.org/ontologies/2007/03/22/nco#fullname"
	nieTitle          = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#title"
	multiProp         = "http://example.org/onto#multi"
	freeProp          = "http://example.org/onto#free"
)

// newModel builds a Model over a fresh memory engine whose ontology
// declares every property these tests exercise: nao:identifier (unbounded
// literal), nie:url/nao:hasSubResource (resource-ranged, per the real
// ontology), nao:hasTag (resource-ranged), nco:emailAddress (literal,
// defining by default), nco:fullname (literal, max-cardinality 1), and a
// generic multi-valued literal property capped at 3.
func newModel(t *testing.T) *Model {
	t.Helper()
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	const g = "nepomuk:/ctx/onto"

	add := func(s, p string, o store.Term) {
		require.NoError(t, eng.AddStatement(ctx, store.URI(s), p, o, g))
	}
	add(naoTagClass, cpt.RDFType, store.URI(cpt.RDFSClass))
	add(nfoFileDataObject, cpt.RDFType, store.URI(cpt.RDFSClass))

	add(naoIdentifier, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(naoIdentifier, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))

	add(nieURL, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(nieURL, cpt.RDFSRange, store.URI(cpt.RDFSResource))

	add(naoHasSubResource, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(naoHasSubResource, cpt.RDFSRange, store.URI(cpt.RDFSResource))

	add(nieTitle, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(nieTitle, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))

	add(naoHasTag, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(naoHasTag, cpt.RDFSRange, store.URI(cpt.RDFSResource))

	add(ncoEmailAddress, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(ncoEmailAddress, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))

	add(ncoFullname, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(ncoFullname, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))
	add(ncoFullname, cpt.NRLMaxCardinality, store.Literal("1", cpt.XSDString))

	add(multiProp, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(multiProp, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))
	add(multiProp, cpt.NRLMaxCardinality, store.Literal("3", cpt.XSDString))

	add(freeProp, cpt.RDFType, store.URI(cpt.RDFProperty))
	add(freeProp, cpt.RDFSRange, store.URI(cpt.RDFSLiteral))

	m := New(eng, DefaultConfig())
	require.NoError(t, m.Rebuild(ctx))
	t.Cleanup(m.Close)
	return m
}

// hasStatement reports whether the engine currently holds (subj, pred,
// any object), regardless of graph.
func hasStatement(t *testing.T, m *Model, subj, pred string) bool {
	t.Helper()
	tx, err := m.eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	s := store.URI(subj)
	p := pred
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &p})
	require.NoError(t, err)
	defer it.Close()
	return it.Next()
}

func countStatements(t *testing.T, m *Model, subj, pred string) int {
	t.Helper()
	tx, err := m.eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	s := store.URI(subj)
	p := pred
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &p})
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

// mustGraphOf returns the graph of the first statement matching
// (subj, pred, *), failing the test if none exists.
func mustGraphOf(t *testing.T, tx store.Transaction, subj, pred string) string {
	t.Helper()
	s := store.URI(subj)
	p := pred
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &p})
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Next(), "expected at least one statement for %s %s", subj, pred)
	return it.Quad().Graph
}

// subjectsWithURL returns every subject currently asserting nie:url ==
// url, coercing the lookup value through the CPT exactly like
// identifier.matchByURL does.
func subjectsWithURL(t *testing.T, m *Model, url string) []string {
	t.Helper()
	tx, err := m.eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	term, err := m.tree.VariantToNode(url, nieURL)
	require.NoError(t, err)
	pred := nieURL
	it, err := tx.ListStatements(store.Pattern{Predicate: &pred, Object: &term})
	require.NoError(t, err)
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, it.Quad().Subject.Value)
	}
	return out
}

// subjectsWithLiteral returns every subject currently asserting
// pred == value (plain literal comparison by lexical value).
func subjectsWithLiteral(t *testing.T, m *Model, pred, value string) []string {
	t.Helper()
	tx, err := m.eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	p := pred
	it, err := tx.ListStatements(store.Pattern{Predicate: &p})
	require.NoError(t, err)
	defer it.Close()
	var out []string
	for it.Next() {
		q := it.Quad()
		if q.Object.Value == value {
			out = append(out, q.Subject.Value)
		}
	}
	return out
}
