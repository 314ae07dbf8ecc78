// Package merger buffers the property writes produced by resource
// identification and applies them to the store under the constraints
// the spec places on every mutation: cardinality, nie:url uniqueness,
// and ontology domain (ranges are applied earlier, when the CPT coerces
// the incoming values). Grounded on the data-model invariants
// described alongside classandpropertytree.cpp (cardinality/domain are
// read straight off the CPT) and nornicdb's buffer-then-commit
// Transaction pattern (pkg/storage/transaction.go) for the "collect
// then apply" shape.
package merger

import (
	"context"
	"fmt"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/graphregistry"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
)

const nieURL = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#url"

// Quad is one pending write: a property assertion on subject, not yet
// routed to a provenance graph.
type Quad struct {
	Subject   string
	Predicate string
	Object    store.Term
}

// Options controls how conflicts are resolved.
type Options struct {
	// App is the contributing agent identifier used for provenance.
	App string
	// Discardable marks the target graphs as discardable (cache-only)
	// data rather than durable instance data.
	Discardable bool
	// Overwrite allows a single-valued property's existing value to be
	// replaced instead of rejected.
	Overwrite bool
}

// Merger applies a batch of pending quads to the store, enforcing the
// ontology's cardinality and domain constraints and routing each
// statement through the graph registry.
type Merger struct {
	tree     *cpt.Tree
	registry *graphregistry.Registry
}

// New returns a merger consulting tree for constraints and registry for
// provenance routing.
func New(tree *cpt.Tree, registry *graphregistry.Registry) *Merger {
	return &Merger{tree: tree, registry: registry}
}

// subjectTypes supplies each subject's effective rdf:type closure so
// domain checks don't need to re-query the store for every quad; callers
// build this once per transaction (existing types plus any types being
// asserted in the same batch).
type subjectTypes = map[string][]string

// Merge validates and writes quads inside tx, returning a
// *nepomukerr.Error on any constraint violation. No partial write is
// left behind on error: callers must roll back tx themselves, since the
// merger only buffers statement-level operations on the already-open
// transaction.
func (m *Merger) Merge(ctx context.Context, tx store.Transaction, quads []Quad, types subjectTypes, opts Options) error {
	if opts.App == "" {
		return nepomukerr.New(nepomukerr.InvalidArgument, "app identifier must not be empty")
	}

	for _, q := range quads {
		if err := m.mergeOne(ctx, tx, q, types, opts); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) mergeOne(ctx context.Context, tx store.Transaction, q Quad, types subjectTypes, opts Options) error {
	if domain := m.tree.PropertyDomain(q.Predicate); domain != "" {
		if !m.tree.IsChildOfAny(types[q.Subject], domain) {
			return nepomukerr.New(nepomukerr.InvalidArgument,
				"property %s requires domain %s on %s", q.Predicate, domain, q.Subject)
		}
	}

	if q.Predicate == nieURL {
		if err := m.enforceURLUniqueness(tx, q); err != nil {
			return err
		}
	}

	if m.tree.MaxCardinality(q.Predicate) == 1 {
		if err := m.enforceSingleValued(tx, q, opts.Overwrite); err != nil {
			return err
		}
	}

	subj := store.URI(q.Subject)
	if _, _, err := m.registry.RouteStatement(ctx, tx, subj, q.Predicate, q.Object, opts.Discardable, opts.App); err != nil {
		return nepomukerr.Store(fmt.Errorf("merger: route %s %s: %w", q.Subject, q.Predicate, err))
	}
	return nil
}

// enforceURLUniqueness rejects a nie:url value already claimed by a
// different subject.
func (m *Merger) enforceURLUniqueness(tx store.Transaction, q Quad) error {
	pred := nieURL
	it, err := tx.ListStatements(store.Pattern{Predicate: &pred, Object: &q.Object})
	if err != nil {
		return nepomukerr.Store(err)
	}
	defer it.Close()
	for it.Next() {
		if it.Quad().Subject.Value != q.Subject {
			return nepomukerr.New(nepomukerr.UniquenessViolation,
				"nie:url %q already claimed by %s", q.Object.Value, it.Quad().Subject.Value)
		}
	}
	return it.Err()
}

// enforceSingleValued checks whether q.Subject already carries a
// different value for q.Predicate. If so and overwrite is set, the old
// value is removed so the caller's subsequent route writes the
// replacement. If overwrite is unset, it rejects with
// CardinalityExceeded.
func (m *Merger) enforceSingleValued(tx store.Transaction, q Quad, overwrite bool) error {
	subj := store.URI(q.Subject)
	pred := q.Predicate
	it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
	if err != nil {
		return nepomukerr.Store(err)
	}
	defer it.Close()

	var existing *store.Quad
	for it.Next() {
		quad := it.Quad()
		if quad.Object.Kind == q.Object.Kind && quad.Object.Value == q.Object.Value && quad.Object.Datatype == q.Object.Datatype {
			return nil // same value already present, nothing to do
		}
		c := quad
		existing = &c
	}
	if err := it.Err(); err != nil {
		return nepomukerr.Store(err)
	}
	if existing == nil {
		return nil
	}
	if !overwrite {
		return nepomukerr.New(nepomukerr.CardinalityExceeded,
			"%s already has a value for %s", q.Subject, q.Predicate)
	}
	if err := tx.RemoveStatement(subj, pred, existing.Object, existing.Graph); err != nil {
		return nepomukerr.Store(err)
	}
	return nil
}
