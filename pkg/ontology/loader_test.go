package ontology

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOntology = `# minimal class/property pair
<http://example.org/onto#Tag> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/2000/01/rdf-schema#Class> .
<http://example.org/onto#label> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/1999/02/22-rdf-syntax-ns#Property> .
<http://example.org/onto#label> <http://www.w3.org/2000/01/rdf-schema#range> <http://www.w3.org/2000/01/rdf-schema#Literal> .
`

func writeSample(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.nq")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestImportLoadsStatements(t *testing.T) {
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	path := writeSample(t, sampleOntology)

	changed, err := New(eng).Import(context.Background(), path, false)
	require.NoError(t, err)
	assert.True(t, changed)

	graph := defaultGraphURI(path)
	g := graph
	it, err := eng.ListStatements(context.Background(), store.Pattern{Graph: &g})
	require.NoError(t, err)
	defer it.Close()

	var n int
	for it.Next() {
		n++
	}
	assert.Equal(t, 3, n)
}

func TestImportSkipsUnchangedFile(t *testing.T) {
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	path := writeSample(t, sampleOntology)

	ctx := context.Background()
	loader := New(eng)

	changed, err := loader.Import(ctx, path, false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = loader.Import(ctx, path, false)
	require.NoError(t, err)
	assert.False(t, changed, "second import of an untouched file should be a no-op")
}

func TestImportReimportsOnNewerMtime(t *testing.T) {
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	path := writeSample(t, sampleOntology)

	ctx := context.Background()
	loader := New(eng)
	_, err := loader.Import(ctx, path, false)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	changed, err := loader.Import(ctx, path, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestImportForceReimportsRegardless(t *testing.T) {
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	path := writeSample(t, sampleOntology)

	ctx := context.Background()
	loader := New(eng)
	_, err := loader.Import(ctx, path, false)
	require.NoError(t, err)

	changed, err := loader.Import(ctx, path, true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestImportAllReportsAnyChange(t *testing.T) {
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	path := writeSample(t, sampleOntology)

	changed, err := New(eng).ImportAll(context.Background(), []string{path}, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestParseNQuadsHandlesExplicitGraphAndLiteralDatatype(t *testing.T) {
	const line = `<http://example.org/a> <http://example.org/p> "3.14"^^<http://www.w3.org/2001/XMLSchema#float> <http://example.org/g> .`
	quads, err := parseNQuads(strings.NewReader(line))
	require.NoError(t, err)
	require.Len(t, quads, 1)

	q := quads[0]
	assert.Equal(t, "http://example.org/a", q.Subject.Value)
	assert.Equal(t, "http://example.org/p", q.Predicate)
	assert.Equal(t, "3.14", q.Object.Value)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#float", q.Object.Datatype)
	assert.Equal(t, "http://example.org/g", q.Graph)
}
