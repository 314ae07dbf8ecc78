package cpt

import (
	"context"
	"strconv"

	"github.com/nepomuk-go/datacore/pkg/store"
)

// rebuildQuery is the Go translation of ClassAndPropertyTree::rebuildTree's
// SPARQL query: every class/property, its direct parent (if any), and any
// declared cardinality/domain/range, in one pass.
const rebuildQuery = `SELECT ?r ?p ?mc ?c ?domain ?range ?ct ?pt WHERE {
  { ?r a ?ct . FILTER(?ct = <` + RDFSClass + `>) .
    OPTIONAL { ?r <` + RDFSSubClassOf + `> ?p . ?p a <` + RDFSClass + `> . } }
  UNION
  { ?r a ?pt . FILTER(?pt = <` + RDFProperty + `>) .
    OPTIONAL { ?r <` + RDFSSubPropOf + `> ?p . ?p a <` + RDFProperty + `> . } }
  OPTIONAL { ?r <` + NRLMaxCardinality + `> ?mc . }
  OPTIONAL { ?r <` + NRLCardinality + `> ?c . }
  OPTIONAL { ?r <` + RDFSDomain + `> ?domain . }
  OPTIONAL { ?r <` + RDFSRange + `> ?range . }
  FILTER(?r != <` + RDFSResource + `>)
}`

// definingQuery finds every property explicitly annotated as defining or
// non-defining via nrl:DefiningProperty/nrl:NonDefiningProperty.
const definingQuery = `SELECT ?p ?t WHERE {
  ?p a <` + RDFProperty + `> .
  ?p a ?t .
  FILTER(?t != <` + RDFProperty + `>)
}`

func (t *Tree) loadClassesAndProperties(ctx context.Context, eng store.Engine) error {
	res, err := eng.ExecuteQuery(ctx, rebuildQuery, store.SPARQL)
	if err != nil {
		return err
	}

	for _, b := range res.Bindings {
		r, ok := b["r"]
		if !ok || !r.IsURI() {
			continue
		}
		cop, ok := t.tree[r.Value]
		if !ok {
			cop = newNode(r.Value)
			t.tree[r.Value] = cop
		}

		if _, isProp := b["pt"]; isProp {
			cop.isProperty = true
		}

		mc := literalInt(b["mc"])
		c := literalInt(b["c"])
		if mc > 0 || c > 0 {
			if mc > c {
				cop.maxCardinality = mc
			} else {
				cop.maxCardinality = c
			}
		}

		if domain, ok := b["domain"]; ok && domain.IsURI() && domain.Value != "" {
			cop.domain = domain.Value
		}

		if rang, ok := b["range"]; ok && rang.IsURI() && rang.Value != "" {
			cop.rang = rang.Value
			switch rang.Value {
			case XSDDuration:
				// xsd:duration has no native lexical-form handling here;
				// treated as an opaque literal, not specially coerced.
			case RDFSLiteral:
				cop.hasRdfsLiteralRange = true
			}
		}

		if p, ok := b["p"]; ok && p.IsURI() && p.Value != r.Value && p.Value != RDFSResource {
			if _, exists := t.tree[p.Value]; !exists {
				t.tree[p.Value] = newNode(p.Value)
			}
			cop.directParents[p.Value] = struct{}{}
		}
	}
	return nil
}

func (t *Tree) loadDefiningAnnotations(ctx context.Context, eng store.Engine) error {
	res, err := eng.ExecuteQuery(ctx, definingQuery, store.SPARQL)
	if err != nil {
		return err
	}
	for _, b := range res.Bindings {
		p, okP := b["p"]
		typ, okT := b["t"]
		if !okP || !okT {
			continue
		}
		cop, ok := t.tree[p.Value]
		if !ok {
			continue
		}
		switch typ.Value {
		case NRLDefining:
			cop.defining = 1
		case NRLNonDefining:
			cop.defining = -1
		}
	}
	return nil
}

func literalInt(term store.Term) int {
	if term.Value == "" {
		return 0
	}
	n, err := strconv.Atoi(term.Value)
	if err != nil {
		return 0
	}
	return n
}
