// Package identifier decides whether an incoming sync-resource names an
// already-known resource. Grounded on
// original_source/services/storage/resourceidentifier.cpp: same three
// checks in the same order (exact URI, nie:url, defining-property
// superset), the same "never identify a DataObject by its properties"
// rule, and the same oldest-nao:created tie-break — adapted from Soprano
// SPARQL calls to this module's store.Engine/Transaction API.
package identifier

import (
	"context"
	"fmt"
	"sort"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/store"
)

const (
	rdfType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	nieURL        = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#url"
	nieDataObject = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#DataObject"
	naoCreated    = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#created"
)

// Resource is the subset of syncresource.Resource (or any equivalent,
// already-coerced incoming resource) the identifier needs: its subject,
// whether it is a blank-node label, its nie:url, its rdf:types, and its
// full property map for defining-property matching.
type Resource interface {
	URI() string
	IsBlank() bool
	NieURL() string
	Types() []string
	Properties() map[string][]store.Term
}

// Mode selects how aggressively storeResources attempts to reuse an
// existing resource instead of minting a fresh one.
type Mode int

const (
	// IdentifyNew runs the full identification procedure: URL match,
	// then defining-property superset match.
	IdentifyNew Mode = iota
	// IdentifyNone only ever matches by exact URI or nie:url; every
	// other incoming resource is treated as fresh.
	IdentifyNone
)

// Outcome tags the three possible results of Run.
type Outcome int

const (
	// Fresh means no existing resource matched; the caller mints a new
	// URI.
	Fresh Outcome = iota
	// Identified means the resource names an existing store resource.
	Identified
	// Ambiguous means more than one candidate matched and none could
	// be preferred by nao:created.
	Ambiguous
)

// Result is the outcome of identifying one incoming resource.
type Result struct {
	Outcome    Outcome
	URI        string   // valid when Outcome == Identified
	Candidates []string // valid when Outcome == Ambiguous
}

// metaProperties are never considered identifying, even if the ontology
// marks them defining — they describe provenance, not identity.
var metaProperties = map[string]struct{}{
	naoCreated: {},
	"http://www.semanticdesktop.org/ontologies/2007/08/15/nao#lastModified": {},
	"http://www.semanticdesktop.org/ontologies/2007/08/15/nao#userVisible":  {},
	"http://www.semanticdesktop.org/ontologies/2007/08/15/nao#creator":      {},
}

// Identifier runs the identification procedure against a store
// transaction and an ontology snapshot.
type Identifier struct {
	tree *cpt.Tree
}

// New returns an identifier consulting tree for defining-property and
// subclass information.
func New(tree *cpt.Tree) *Identifier {
	return &Identifier{tree: tree}
}

// IsIdentifyingProperty reports whether property should participate in
// defining-property matching.
func (id *Identifier) IsIdentifyingProperty(property string) bool {
	if _, ok := metaProperties[property]; ok {
		return false
	}
	return id.tree.IsDefiningProperty(property)
}

// Exists reports whether uri already names a resource with at least one
// statement in the store. Blank-node labels never exist.
func (id *Identifier) Exists(ctx context.Context, tx store.Transaction, uri string) (bool, error) {
	if len(uri) >= 2 && uri[:2] == "_:" {
		return false, nil
	}
	subj := store.URI(uri)
	it, err := tx.ListStatements(store.Pattern{Subject: &subj})
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.Next(), it.Err()
}

// matchByURL returns the existing resource asserting nie:url == url, if
// any. url is coerced through the CPT the same way storeResources
// coerces every other incoming value, since nie:url's ontology range
// (rdfs:Resource) stores it as a URI term, not a plain string literal;
// a hand-built literal term would never match what's actually in the
// store.
func (id *Identifier) matchByURL(ctx context.Context, tx store.Transaction, url string) (string, error) {
	obj, err := id.tree.VariantToNode(url, nieURL)
	if err != nil {
		return "", fmt.Errorf("coerce nie:url %q: %w", url, err)
	}
	pred := nieURL
	it, err := tx.ListStatements(store.Pattern{Predicate: &pred, Object: &obj})
	if err != nil {
		return "", err
	}
	defer it.Close()
	if it.Next() {
		return it.Quad().Subject.Value, it.Err()
	}
	return "", it.Err()
}

// candidatesByDefiningProperties returns every store resource whose
// asserted (property, value) pairs are a superset of pairs.
func (id *Identifier) candidatesByDefiningProperties(tx store.Transaction, pairs []definingPair) (map[string]struct{}, error) {
	var candidates map[string]struct{}
	for _, pr := range pairs {
		pred := pr.property
		obj := pr.value
		it, err := tx.ListStatements(store.Pattern{Predicate: &pred, Object: &obj})
		if err != nil {
			return nil, err
		}
		matched := map[string]struct{}{}
		for it.Next() {
			matched[it.Quad().Subject.Value] = struct{}{}
		}
		closeErr := it.Close()
		if err := it.Err(); err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}

		if candidates == nil {
			candidates = matched
			continue
		}
		for k := range candidates {
			if _, ok := matched[k]; !ok {
				delete(candidates, k)
			}
		}
	}
	return candidates, nil
}

type definingPair struct {
	property string
	value    store.Term
}

// duplicateMatch picks the candidate with the oldest nao:created,
// breaking ties by URI. Returns "" if none of the candidates carries a
// nao:created value (the original's FIXME fallback).
func (id *Identifier) duplicateMatch(tx store.Transaction, candidates map[string]struct{}) (string, error) {
	type dated struct {
		uri     string
		created string
		hasDate bool
	}
	all := make([]dated, 0, len(candidates))
	for uri := range candidates {
		subj := store.URI(uri)
		pred := naoCreated
		it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
		if err != nil {
			return "", err
		}
		d := dated{uri: uri}
		if it.Next() {
			d.created = it.Quad().Object.Value
			d.hasDate = true
		}
		if err := it.Close(); err != nil {
			return "", err
		}
		all = append(all, d)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].hasDate != all[j].hasDate {
			return all[i].hasDate // dated entries sort before undated ones
		}
		if all[i].created != all[j].created {
			return all[i].created < all[j].created
		}
		return all[i].uri < all[j].uri
	})

	if len(all) == 0 || !all[0].hasDate {
		return "", nil
	}
	return all[0].uri, nil
}

// Run decides the fate of res: an existing resource it names (Identified),
// no match (Fresh), or an unresolved collision (Ambiguous).
func (id *Identifier) Run(ctx context.Context, tx store.Transaction, res Resource, mode Mode) (Result, error) {
	if res.IsBlank() {
		return Result{Outcome: Fresh}, nil
	}

	exists, err := id.Exists(ctx, tx, res.URI())
	if err != nil {
		return Result{}, fmt.Errorf("identifier: exists: %w", err)
	}
	if exists {
		return Result{Outcome: Identified, URI: res.URI()}, nil
	}

	if url := res.NieURL(); url != "" {
		match, err := id.matchByURL(ctx, tx, url)
		if err != nil {
			return Result{}, fmt.Errorf("identifier: url match: %w", err)
		}
		if match != "" {
			return Result{Outcome: Identified, URI: match}, nil
		}
		return Result{Outcome: Fresh}, nil
	}

	if mode == IdentifyNone {
		return Result{Outcome: Fresh}, nil
	}

	for _, t := range res.Types() {
		all := id.tree.AllParents(t)
		if t == nieDataObject {
			return Result{Outcome: Fresh}, nil
		}
		if _, ok := all[nieDataObject]; ok {
			return Result{Outcome: Fresh}, nil
		}
	}

	var pairs []definingPair
	for prop, vals := range res.Properties() {
		if !id.IsIdentifyingProperty(prop) {
			continue
		}
		for _, v := range vals {
			pairs = append(pairs, definingPair{property: prop, value: v})
		}
	}
	if len(pairs) == 0 {
		return Result{Outcome: Fresh}, nil
	}

	candidates, err := id.candidatesByDefiningProperties(tx, pairs)
	if err != nil {
		return Result{}, fmt.Errorf("identifier: candidate search: %w", err)
	}
	switch len(candidates) {
	case 0:
		return Result{Outcome: Fresh}, nil
	case 1:
		for uri := range candidates {
			return Result{Outcome: Identified, URI: uri}, nil
		}
	}

	match, err := id.duplicateMatch(tx, candidates)
	if err != nil {
		return Result{}, fmt.Errorf("identifier: duplicate match: %w", err)
	}
	if match == "" {
		list := make([]string, 0, len(candidates))
		for uri := range candidates {
			list = append(list, uri)
		}
		sort.Strings(list)
		return Result{Outcome: Ambiguous, Candidates: list}, nil
	}
	return Result{Outcome: Identified, URI: match}, nil
}
