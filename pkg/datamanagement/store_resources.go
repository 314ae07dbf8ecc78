package datamanagement

import (
	"context"
	"strings"

	"github.com/nepomuk-go/datacore/pkg/audit"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/nepomuk-go/datacore/pkg/merger"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// StoreFlag modifies storeResources' merge behaviour.
type StoreFlag int

const (
	StoreNone StoreFlag = 0
	// OverwriteProperties lets a single-valued property's existing
	// value be replaced instead of rejecting the store.
	OverwriteProperties StoreFlag = 1 << iota
	// LazyCardinalities skips the cumulative multi-valued cardinality
	// check for this call, trading strictness for throughput on large
	// bulk imports the caller has already validated upstream.
	LazyCardinalities
)

// RawResource is one resource as it arrives over the wire, before
// ontology validation and literal coercion: its subject (a blank-node
// label, a provisional resource URI, or a non-nepomuk URL) and its
// uncoerced property values.
type RawResource struct {
	URI        string
	Properties map[string][]any
}

// RawGraph is the SimpleResourceGraph storeResources ingests.
type RawGraph []RawResource

// StoreResult reports the outcome of storeResources: the mapping from
// every blank-node label in the input to the URI it was ultimately
// stored under (freshly minted or identified).
type StoreResult struct {
	URIs map[string]string
}

// StoreResources is the central ingestion path (SPEC_FULL.md §4.3): it
// validates the incoming graph against the CPT, identifies each
// resource against the existing store, preserves hasSubResource
// hierarchy across identification, and merges the resulting statements
// in a single transaction.
func (m *Model) StoreResources(ctx context.Context, graph RawGraph, mode identifier.Mode, flags StoreFlag, additionalMetadata map[string]string, app string) (StoreResult, error) {
	if err := requireApp(app); err != nil {
		return StoreResult{}, err
	}
	if len(graph) == 0 {
		return StoreResult{}, nepomukerr.New(nepomukerr.InvalidArgument, "graph must not be empty")
	}

	converted, err := m.validateAndConvert(graph)
	if err != nil {
		return StoreResult{}, err
	}

	discardable := false
	result := StoreResult{URIs: map[string]string{}}

	err = m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		resolved := map[string]string{} // original key -> resolved URI
		fresh := map[string]bool{}

		for key, res := range converted {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			outcome, err := m.ident.Run(ctx, tx, res, mode)
			if err != nil {
				return nil, nepomukerr.Wrap(nepomukerr.StoreError, err, "identify %s", key)
			}
			switch outcome.Outcome {
			case identifier.Identified:
				resolved[key] = outcome.URI
			case identifier.Ambiguous:
				return nil, nepomukerr.New(nepomukerr.AmbiguousIdentification, "%s matches %d existing resources", key, len(outcome.Candidates))
			default: // Fresh
				minted := newResourceURI()
				resolved[key] = minted
				fresh[minted] = true
			}
			if isBlankKey(key) {
				result.URIs[key] = resolved[key]
			}
		}

		rewrite := func(t store.Term) store.Term {
			if t.IsURI() {
				if r, ok := resolved[t.Value]; ok {
					return store.URI(r)
				}
			}
			return t
		}

		subjectTypes := map[string][]string{}
		var quads []merger.Quad
		for key, res := range converted {
			subj := resolved[key]
			types, err := m.typesOf(tx, subj)
			if err != nil {
				return nil, nepomukerr.Store(err)
			}
			merged := append(append([]string{}, types...), res.Types()...)
			subjectTypes[subj] = merged

			if flags&LazyCardinalities == 0 {
				for prop, terms := range res.Properties() {
					if prop == rdfType {
						continue
					}
					if err := m.checkCumulativeCardinality(tx, subj, prop, terms); err != nil {
						return nil, err
					}
				}
			}

			for _, qd := range res.Quads() {
				quads = append(quads, merger.Quad{Subject: subj, Predicate: qd.Predicate, Object: rewrite(qd.Object)})
			}
		}

		opts := merger.Options{App: app, Discardable: discardable, Overwrite: flags&OverwriteProperties != 0}
		if err := m.runMerge(ctx, tx, quads, subjectTypes, opts); err != nil {
			return nil, err
		}

		var batch watcher.Batch
		for _, q := range quads {
			batch = append(batch, watcher.Change{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object.Value, Kind: watcher.Added, Types: subjectTypes[q.Subject]})
		}

		stamp := store.Literal(now(), "http://www.w3.org/2001/XMLSchema#dateTime")
		for subj := range subjectTypes {
			if fresh[subj] {
				if _, _, err := m.registry.RouteStatement(ctx, tx, store.URI(subj), naoCreated, stamp, discardable, app); err != nil {
					return nil, nepomukerr.Store(err)
				}
			}
			if err := m.touchLastModified(ctx, tx, subj, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			m.types.Invalidate(subj)
		}

		if len(additionalMetadata) > 0 {
			metaGraph, err := m.registry.GraphForAgentSet(ctx, tx, []string{app}, discardable)
			if err != nil {
				return nil, nepomukerr.Store(err)
			}
			for k, v := range additionalMetadata {
				if err := tx.AddStatement(store.URI(metaGraph), "nepomuk:/meta/"+k, store.Literal(v, ""), metaGraph); err != nil {
					return nil, nepomukerr.Store(err)
				}
			}
		}

		return batch, nil
	})
	auditResources := make([]string, 0, len(converted))
	for key := range converted {
		auditResources = append(auditResources, key)
	}
	m.logAudit(audit.EventStoreResources, app, auditResources, "", err)
	if err != nil {
		return StoreResult{}, err
	}
	return result, nil
}

func isBlankKey(key string) bool {
	return strings.HasPrefix(key, "_:")
}

// validateAndConvert checks every property against the CPT and coerces
// every raw value into an RDF term, rejecting the whole graph on the
// first validation failure (SPEC_FULL.md §4.3 step 1).
func (m *Model) validateAndConvert(graph RawGraph) (map[string]*convertedResource, error) {
	out := make(map[string]*convertedResource, len(graph))
	for _, raw := range graph {
		if raw.URI == "" {
			return nil, nepomukerr.New(nepomukerr.InvalidArgument, "resource URI must not be empty")
		}
		cr := &convertedResource{uri: raw.URI, properties: map[string][]store.Term{}}
		for prop, values := range raw.Properties {
			if prop != rdfType && !m.tree.Contains(prop) {
				return nil, nepomukerr.New(nepomukerr.UnknownProperty, "unknown property %s", prop)
			}
			if prop == rdfType {
				terms := make([]store.Term, 0, len(values))
				for _, v := range values {
					s, ok := v.(string)
					if !ok {
						return nil, nepomukerr.New(nepomukerr.InvalidArgument, "rdf:type values must be strings")
					}
					terms = append(terms, store.URI(s))
				}
				cr.properties[prop] = terms
				continue
			}
			terms, err := m.tree.VariantListToNodeSet(values, prop)
			if err != nil {
				return nil, nepomukerr.Wrap(nepomukerr.InvalidArgument, err, "convert %s", prop)
			}
			cr.properties[prop] = terms
		}
		out[raw.URI] = cr
	}
	return out, nil
}

// convertedResource is a RawResource after validation and literal
// coercion, in the shape the identifier and merger consume.
type convertedResource struct {
	uri        string
	properties map[string][]store.Term
}

func (c *convertedResource) URI() string                        { return c.uri }
func (c *convertedResource) IsBlank() bool                       { return isBlankKey(c.uri) }
func (c *convertedResource) Properties() map[string][]store.Term { return c.properties }
func (c *convertedResource) Property(p string) []store.Term     { return c.properties[p] }
func (c *convertedResource) Types() []string {
	vals := c.properties[rdfType]
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Value)
	}
	return out
}
func (c *convertedResource) NieURL() string {
	vals := c.properties[nieURL]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}
func (c *convertedResource) Quads() []struct {
	Predicate string
	Object    store.Term
} {
	out := make([]struct {
		Predicate string
		Object    store.Term
	}, 0, len(c.properties))
	for p, vals := range c.properties {
		for _, v := range vals {
			out = append(out, struct {
				Predicate string
				Object    store.Term
			}{Predicate: p, Object: v})
		}
	}
	return out
}
