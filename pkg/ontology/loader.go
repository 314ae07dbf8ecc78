// Package ontology loads N-Quads/.trig ontology files into the quad
// store, tracking each file's modification time so a restart only
// re-imports (and re-feeds the CPT) the files that actually changed.
//
// Grounded on the original Nepomuk OntologyLoader
// (services/storage/ontologyloader.cpp): same file-timestamp gate before
// reparsing, same "replace the ontology's existing statements, then
// insert the freshly parsed ones" update strategy. The original split an
// ontology's identity (its RDF namespace) from its storage location (a
// .ontology desktop file pointing at a .trig file read through Soprano's
// plugin-discovered parser); this package collapses that down to "one
// file, one synthetic graph", since there is no KDE resource-directory
// convention to mirror here.
package ontology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nepomuk-go/datacore/pkg/store"
)

// Loader imports ontology files into eng. It does not itself trigger a
// CPT rebuild — ImportAll reports whether anything changed so the caller
// (typically the serve command, at startup) can decide when to rebuild.
type Loader struct {
	eng store.Engine
}

// New wraps eng for ontology loading.
func New(eng store.Engine) *Loader {
	return &Loader{eng: eng}
}

// ImportAll imports every path, in order, returning true if at least one
// file was actually re-parsed (i.e. was new or had a newer modification
// time than its last import). force re-imports every path regardless of
// timestamp, mirroring updateAllLocalOntologies in the original.
func (l *Loader) ImportAll(ctx context.Context, paths []string, force bool) (bool, error) {
	changed := false
	for _, path := range paths {
		c, err := l.Import(ctx, path, force)
		if err != nil {
			return changed, fmt.Errorf("ontology: importing %s: %w", path, err)
		}
		changed = changed || c
	}
	return changed, nil
}

// Import loads a single ontology file if its modification time is newer
// than the last time this path was imported (or always, if force is
// set). Quads that carry an explicit graph term (the .trig case) are
// routed into that graph; quads with none fall into this file's default
// graph. Every graph touched by the file is cleared with RemoveContext
// before the freshly parsed quads are inserted, so a shrunk ontology
// drops the statements it removed instead of merely adding new ones.
func (l *Loader) Import(ctx context.Context, path string, force bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("ontology: stat %s: %w", path, err)
	}

	trackKey := trackingKey(path)
	if !force {
		last, ok, err := l.lastModified(ctx, trackKey)
		if err != nil {
			return false, err
		}
		if ok && !info.ModTime().Truncate(time.Second).After(last) {
			return false, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("ontology: opening %s: %w", path, err)
	}
	defer f.Close()

	quads, err := parseNQuads(f)
	if err != nil {
		return false, fmt.Errorf("ontology: parsing %s: %w", path, err)
	}

	defaultGraph := defaultGraphURI(path)
	byGraph := make(map[string][]parsedQuad)
	for _, q := range quads {
		g := q.Graph
		if g == "" {
			g = defaultGraph
		}
		byGraph[g] = append(byGraph[g], q)
	}
	// A file with no statements at all still owns (and must clear) its
	// default graph, so deleting every triple from an ontology removes
	// what was there before.
	if _, ok := byGraph[defaultGraph]; !ok {
		byGraph[defaultGraph] = nil
	}

	for graph, qs := range byGraph {
		if err := l.eng.RemoveContext(ctx, graph); err != nil {
			return false, fmt.Errorf("ontology: clearing graph %s: %w", graph, err)
		}
		for _, q := range qs {
			if err := l.eng.AddStatement(ctx, q.Subject, q.Predicate, q.Object, graph); err != nil {
				return false, fmt.Errorf("ontology: inserting into %s: %w", graph, err)
			}
		}
	}

	if err := l.setLastModified(ctx, trackKey, info.ModTime()); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loader) lastModified(ctx context.Context, trackKey string) (time.Time, bool, error) {
	subj := store.URI(trackKey)
	pred := naoLastModified
	graph := metadataGraph
	it, err := l.eng.ListStatements(ctx, store.Pattern{Subject: &subj, Predicate: &pred, Graph: &graph})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ontology: reading last-modified for %s: %w", trackKey, err)
	}
	defer it.Close()
	if !it.Next() {
		return time.Time{}, false, it.Err()
	}
	ts, err := time.Parse(time.RFC3339, it.Quad().Object.Value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ontology: malformed last-modified for %s: %w", trackKey, err)
	}
	return ts, true, nil
}

func (l *Loader) setLastModified(ctx context.Context, trackKey string, ts time.Time) error {
	subj := store.URI(trackKey)
	pred := naoLastModified
	graph := metadataGraph
	it, err := l.eng.ListStatements(ctx, store.Pattern{Subject: &subj, Predicate: &pred, Graph: &graph})
	if err != nil {
		return fmt.Errorf("ontology: clearing previous last-modified for %s: %w", trackKey, err)
	}
	var old []store.Quad
	for it.Next() {
		old = append(old, it.Quad())
	}
	if err := it.Close(); err != nil {
		return fmt.Errorf("ontology: clearing previous last-modified for %s: %w", trackKey, err)
	}
	for _, q := range old {
		if err := l.eng.RemoveStatement(ctx, q.Subject, q.Predicate, q.Object, q.Graph); err != nil {
			return fmt.Errorf("ontology: clearing previous last-modified for %s: %w", trackKey, err)
		}
	}

	lit := store.Literal(ts.UTC().Format(time.RFC3339), xsdDateTime)
	if err := l.eng.AddStatement(ctx, subj, naoLastModified, lit, metadataGraph); err != nil {
		return fmt.Errorf("ontology: recording last-modified for %s: %w", trackKey, err)
	}
	return nil
}

// trackingKey identifies path for timestamp tracking, independent of
// whatever graph its statements actually land in.
func trackingKey(path string) string {
	return "urn:nepomuk:ontology-file:" + filepath.ToSlash(path)
}

// defaultGraphURI is the graph a plain N-Quads file's graph-less triples
// are routed into: one per ontology file, named after its base filename.
func defaultGraphURI(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return "urn:nepomuk:ontology:" + base
}
