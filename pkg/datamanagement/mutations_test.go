package datamanagement

import (
	"context"
	"testing"

	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS1AddSetRemoveLiteralProperty is the §8 S1 scenario: add, then set,
// then remove a literal property and watch it appear/disappear.
func TestS1AddSetRemoveLiteralProperty(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	r, err := m.CreateResource(ctx, []string{naoTagClass}, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{r}, naoIdentifier, []any{"Work"}, "appA"))
	assert.True(t, hasStatement(t, m, r, naoIdentifier))

	graph, err := m.DescribeResources(ctx, []string{r}, DescribeNone)
	require.NoError(t, err)
	res, ok := graph.Get(r)
	require.True(t, ok)
	vals := res.Property(naoIdentifier)
	require.Len(t, vals, 1)
	assert.Equal(t, "Work", vals[0].Value)

	require.NoError(t, m.SetProperty(ctx, []string{r}, naoIdentifier, []any{"Home"}, "appA"))
	graph, err = m.DescribeResources(ctx, []string{r}, DescribeNone)
	require.NoError(t, err)
	res, _ = graph.Get(r)
	vals = res.Property(naoIdentifier)
	require.Len(t, vals, 1)
	assert.Equal(t, "Home", vals[0].Value, "old value must be gone, new value present")

	require.NoError(t, m.RemoveProperty(ctx, []string{r}, naoIdentifier, []any{"Home"}, "appA"))
	assert.False(t, hasStatement(t, m, r, naoIdentifier))
}

// TestS3TwoAppProvenanceSplit is the §8 S3 scenario: the same triple
// asserted by two apps lands in one graph maintained by both, and
// dropping one app's maintainership leaves the triple in place.
func TestS3TwoAppProvenanceSplit(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	r, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)
	tag, err := m.CreateResource(ctx, []string{naoTagClass}, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{r}, naoHasTag, []any{tag}, "appA"))
	require.NoError(t, m.AddProperty(ctx, []string{r}, naoHasTag, []any{tag}, "appB"))

	graphURI := graphOf(t, m, r, naoHasTag)
	agents, ok := m.registry.AgentsOf(graphURI)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"appA", "appB"}, agents)

	require.NoError(t, m.RemoveDataByApplication(ctx, []string{r}, RemoveNone, "appA"))
	assert.True(t, hasStatement(t, m, r, naoHasTag), "the triple survives appB's maintainership")

	graphURI = graphOf(t, m, r, naoHasTag)
	agents, ok = m.registry.AgentsOf(graphURI)
	require.True(t, ok)
	assert.Equal(t, []string{"appB"}, agents)
}

func graphOf(t *testing.T, m *Model, subj, pred string) string {
	t.Helper()
	tx, err := m.eng.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	return mustGraphOf(t, tx, subj, pred)
}

// TestS6CardinalityRejection is the §8 S6 scenario: a max-cardinality-1
// property rejects a two-value addProperty and leaves the store
// untouched.
func TestS6CardinalityRejection(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	c, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	err = m.AddProperty(ctx, []string{c}, ncoFullname, []any{"A", "B"}, "appA")
	require.Error(t, err)
	assert.Equal(t, nepomukerr.CardinalityExceeded, nepomukerr.KindOf(err))
	assert.False(t, hasStatement(t, m, c, ncoFullname), "a rejected mutation leaves the store unchanged")
}

func TestAddPropertyRejectsInternalProperty(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	r, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	err = m.AddProperty(ctx, []string{r}, rdfType, []any{naoTagClass}, "appA")
	require.Error(t, err)
	assert.Equal(t, nepomukerr.InvalidArgument, nepomukerr.KindOf(err))
}

func TestAddPropertyEnforcesCumulativeCardinality(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	r, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{r}, multiProp, []any{"a", "b", "c"}, "appA"))
	assert.Equal(t, 3, countStatements(t, m, r, multiProp))

	err = m.AddProperty(ctx, []string{r}, multiProp, []any{"d"}, "appA")
	require.Error(t, err)
	assert.Equal(t, nepomukerr.CardinalityExceeded, nepomukerr.KindOf(err))
	assert.Equal(t, 3, countStatements(t, m, r, multiProp), "the rejected 4th value must not be written")
}

// TestSetPropertyEnforcesCumulativeCardinality is the regression test for
// the fix making setProperty check cumulative cardinality: it must count
// values other apps still maintain, not just the values being replaced.
func TestSetPropertyEnforcesCumulativeCardinality(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	r, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{r}, multiProp, []any{"v1", "v2"}, "appA"))

	err = m.SetProperty(ctx, []string{r}, multiProp, []any{"v3", "v4", "v5"}, "appB")
	require.Error(t, err)
	assert.Equal(t, nepomukerr.CardinalityExceeded, nepomukerr.KindOf(err))

	assert.Equal(t, 2, countStatements(t, m, r, multiProp), "appA's existing values must be untouched by the rejected call")
}

func TestSetPropertyEmptyValuesClearsProperty(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	r, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{r}, freeProp, []any{"v1"}, "appA"))
	require.NoError(t, m.SetProperty(ctx, []string{r}, freeProp, nil, "appA"))
	assert.False(t, hasStatement(t, m, r, freeProp))
}

func TestRemoveResourcesDeletesEveryStatement(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	r, err := m.CreateResource(ctx, []string{naoTagClass}, "label", "", "appA")
	require.NoError(t, err)
	require.NoError(t, m.AddProperty(ctx, []string{r}, naoIdentifier, []any{"x"}, "appA"))

	require.NoError(t, m.RemoveResources(ctx, []string{r}, RemoveNone, "appA"))
	assert.False(t, hasStatement(t, m, r, naoIdentifier))
	assert.False(t, hasStatement(t, m, r, rdfType))
}

func TestMergeResourcesMovesStatementsAndReferences(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	a, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)
	b, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)
	other, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)

	require.NoError(t, m.AddProperty(ctx, []string{b}, freeProp, []any{"v"}, "appA"))
	require.NoError(t, m.AddProperty(ctx, []string{other}, naoHasTag, []any{b}, "appA"))

	require.NoError(t, m.MergeResources(ctx, a, b, "appA"))

	assert.True(t, hasStatement(t, m, a, freeProp), "b's own statements move to a")
	assert.False(t, hasStatement(t, m, b, freeProp))

	graph, err := m.DescribeResources(ctx, []string{other}, DescribeNone)
	require.NoError(t, err)
	res, ok := graph.Get(other)
	require.True(t, ok)
	vals := res.Property(naoHasTag)
	require.Len(t, vals, 1)
	assert.Equal(t, a, vals[0].Value, "references to b get rewritten to a")
}

func TestCreateResourceSetsLabelDescriptionAndTimestamps(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	r, err := m.CreateResource(ctx, []string{naoTagClass}, "My Label", "My Description", "appA")
	require.NoError(t, err)

	graph, err := m.DescribeResources(ctx, []string{r}, DescribeNone)
	require.NoError(t, err)
	res, ok := graph.Get(r)
	require.True(t, ok)

	require.Len(t, res.Property(rdfType), 1)
	assert.Equal(t, naoTagClass, res.Property(rdfType)[0].Value)
	require.Len(t, res.Property(naoPrefLabel), 1)
	assert.Equal(t, "My Label", res.Property(naoPrefLabel)[0].Value)
	require.Len(t, res.Property(naoDescription), 1)
	assert.Equal(t, "My Description", res.Property(naoDescription)[0].Value)
	assert.Len(t, res.Property(naoCreated), 1)
	assert.Len(t, res.Property(naoLastModified), 1)
}

func TestRemoveAllDataByApplicationDropsEveryResourceItMaintains(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	r1, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)
	r2, err := m.CreateResource(ctx, nil, "", "", "appA")
	require.NoError(t, err)
	require.NoError(t, m.AddProperty(ctx, []string{r1}, freeProp, []any{"v"}, "appA"))
	require.NoError(t, m.AddProperty(ctx, []string{r2}, freeProp, []any{"v"}, "appA"))

	require.NoError(t, m.RemoveAllDataByApplication(ctx, RemoveNone, "appA"))
	assert.False(t, hasStatement(t, m, r1, freeProp))
	assert.False(t, hasStatement(t, m, r2, freeProp))
}
