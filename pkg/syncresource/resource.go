// Package syncresource models a resource as it arrives at the data
// management core: a subject URI (possibly a blank-node label) together
// with a multi-valued map of predicate to RDF term, before any
// identification or provenance decision has been made.
//
// Grounded on the original's Nepomuk2::Sync::SyncResource — a
// QMultiHash<KUrl, Soprano::Node> keyed by the resource's own URI — kept
// here as a plain Go multimap rather than a custom hash container.
package syncresource

import "github.com/nepomuk-go/datacore/pkg/store"

const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	nieURL  = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#url"
)

// Resource is one incoming sync-resource: its (possibly provisional) URI
// and the properties asserted about it.
type Resource struct {
	uri        string
	properties map[string][]store.Term
}

// New creates an empty resource identified by uri.
func New(uri string) *Resource {
	return &Resource{uri: uri, properties: make(map[string][]store.Term)}
}

// URI returns the resource's subject URI, which may be a blank-node label
// ("_:b0") before identification runs.
func (r *Resource) URI() string { return r.uri }

// SetURI rebinds the resource to a new subject URI, used once
// identification resolves it to an existing or freshly minted resource.
func (r *Resource) SetURI(uri string) { r.uri = uri }

// IsBlank reports whether the resource's current URI is a blank-node
// label rather than a real resource or graph URI.
func (r *Resource) IsBlank() bool {
	return len(r.uri) >= 2 && r.uri[:2] == "_:"
}

// Add appends a value for property, preserving any existing values (a
// resource may carry several values for a multi-cardinality property).
func (r *Resource) Add(property string, value store.Term) {
	r.properties[property] = append(r.properties[property], value)
}

// Property returns all values asserted for property, or nil if none.
func (r *Resource) Property(property string) []store.Term {
	return r.properties[property]
}

// Properties returns the full property map. Callers must not mutate the
// returned slices.
func (r *Resource) Properties() map[string][]store.Term {
	return r.properties
}

// Types returns the resource's asserted rdf:type values.
func (r *Resource) Types() []string {
	vals := r.properties[rdfType]
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Value)
	}
	return out
}

// NieURL returns the resource's nie:url value, or "" if it has none.
func (r *Resource) NieURL() string {
	vals := r.properties[nieURL]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}

// RemoveObject drops every statement in the resource pointing at uri,
// used when a referenced resource is deleted out from under it.
func (r *Resource) RemoveObject(uri string) {
	for p, vals := range r.properties {
		filtered := vals[:0]
		for _, v := range vals {
			if v.IsURI() && v.Value == uri {
				continue
			}
			filtered = append(filtered, v)
		}
		if len(filtered) == 0 {
			delete(r.properties, p)
		} else {
			r.properties[p] = filtered
		}
	}
}

// IsValid reports whether the resource has a URI and at least one
// property — an empty resource carries nothing worth storing.
func (r *Resource) IsValid() bool {
	return r.uri != "" && len(r.properties) > 0
}

// Quads flattens the resource into a flat (predicate, object) list, one
// entry per value; the subject is the resource's URI and the provenance
// graph is decided later by the graph registry.
func (r *Resource) Quads() []struct {
	Predicate string
	Object    store.Term
} {
	out := make([]struct {
		Predicate string
		Object    store.Term
	}, 0, len(r.properties))
	for p, vals := range r.properties {
		for _, v := range vals {
			out = append(out, struct {
				Predicate string
				Object    store.Term
			}{Predicate: p, Object: v})
		}
	}
	return out
}

// Graph is a set of sync-resources keyed by their (possibly provisional)
// URI, the unit `storeResources` ingests.
type Graph struct {
	resources map[string]*Resource
	order     []string // insertion order, for deterministic hierarchy processing
}

// NewGraph returns an empty sync-resource graph.
func NewGraph() *Graph {
	return &Graph{resources: make(map[string]*Resource)}
}

// Put adds or replaces res in the graph.
func (g *Graph) Put(res *Resource) {
	if _, exists := g.resources[res.URI()]; !exists {
		g.order = append(g.order, res.URI())
	}
	g.resources[res.URI()] = res
}

// Get returns the resource for uri, if present.
func (g *Graph) Get(uri string) (*Resource, bool) {
	res, ok := g.resources[uri]
	return res, ok
}

// Resources returns every resource in the graph in insertion order.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, 0, len(g.order))
	for _, uri := range g.order {
		out = append(out, g.resources[uri])
	}
	return out
}

// Len returns the number of resources in the graph.
func (g *Graph) Len() int { return len(g.resources) }
