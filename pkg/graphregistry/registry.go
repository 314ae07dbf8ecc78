// Package graphregistry creates and reuses provenance graphs keyed by the
// exact set of contributing applications, per SPEC_FULL.md §4.2. Agents
// are deduplicated by their nao:identifier, matching the original's
// boot-time agent merge.
package graphregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/uri"
)

// Registry is process-wide, guarded by a single mutex per SPEC_FULL.md §5.
type Registry struct {
	mu sync.Mutex
	eng store.Engine

	// agentSetKey -> data graph URI
	byAgentSet map[string]string
	// data graph URI -> maintaining agent identifiers
	graphAgents map[string]map[string]struct{}
	// data graph URI -> discardable flag
	graphDiscardable map[string]bool
	// data graph URI -> its metadata graph URI
	metadataOf map[string]string
	// agent identifier -> agent resource URI
	agentURI map[string]string
}

// New returns an empty registry. Call Load before first use against a
// store that may already hold graphs from a previous run.
func New(eng store.Engine) *Registry {
	return &Registry{
		eng:              eng,
		byAgentSet:       map[string]string{},
		graphAgents:      map[string]map[string]struct{}{},
		graphDiscardable: map[string]bool{},
		metadataOf:       map[string]string{},
		agentURI:         map[string]string{},
	}
}

func agentSetKey(agents []string, discardable bool) string {
	sorted := append([]string(nil), agents...)
	sort.Strings(sorted)
	tag := "d0"
	if discardable {
		tag = "d1"
	}
	return tag + "|" + strings.Join(sorted, "\x00")
}

// Load rebuilds the registry's in-memory caches from every metadata graph
// already present in the store, so a restarted process reuses graphs
// instead of fragmenting provenance across a fresh set every boot.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metaGraphs, err := r.eng.ListStatements(ctx, store.Pattern{Predicate: strPtr(rdfType), Object: objPtr(store.URI(nrlGraphMetadata))})
	if err != nil {
		return fmt.Errorf("graphregistry: load: %w", err)
	}
	defer metaGraphs.Close()

	for metaGraphs.Next() {
		mg := metaGraphs.Quad().Graph
		if err := r.loadOneMetadataGraph(ctx, mg); err != nil {
			return err
		}
	}
	return r.loadAgentIndex(ctx)
}

func (r *Registry) loadOneMetadataGraph(ctx context.Context, mg string) error {
	forIt, err := r.eng.ListStatements(ctx, store.Pattern{Predicate: strPtr(nrlCoreGraphMetaFor), Graph: &mg})
	if err != nil {
		return err
	}
	defer forIt.Close()

	var dataGraph string
	for forIt.Next() {
		dataGraph = forIt.Quad().Object.Value
		break
	}
	if dataGraph == "" {
		return nil
	}
	r.metadataOf[dataGraph] = mg

	typeIt, err := r.eng.ListStatements(ctx, store.Pattern{Subject: objPtr(store.URI(dataGraph)), Predicate: strPtr(rdfType), Graph: &mg})
	if err != nil {
		return err
	}
	discardable := false
	for typeIt.Next() {
		if typeIt.Quad().Object.Value == nrlDiscardableBase {
			discardable = true
		}
	}
	typeIt.Close()
	r.graphDiscardable[dataGraph] = discardable

	maintIt, err := r.eng.ListStatements(ctx, store.Pattern{Subject: objPtr(store.URI(dataGraph)), Predicate: strPtr(naoMaintBy), Graph: &mg})
	if err != nil {
		return err
	}
	defer maintIt.Close()

	agents := map[string]struct{}{}
	for maintIt.Next() {
		agentURI := maintIt.Quad().Object.Value
		id, err := r.identifierOf(ctx, agentURI)
		if err != nil || id == "" {
			continue
		}
		agents[id] = struct{}{}
	}
	r.graphAgents[dataGraph] = agents
	key := agentSetKey(setToSlice(agents), discardable)
	r.byAgentSet[key] = dataGraph
	return nil
}

func (r *Registry) loadAgentIndex(ctx context.Context) error {
	it, err := r.eng.ListStatements(ctx, store.Pattern{Predicate: strPtr(rdfType), Object: objPtr(store.URI(naoAgent))})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		agent := it.Quad().Subject.Value
		id, err := r.identifierOf(ctx, agent)
		if err == nil && id != "" {
			if _, exists := r.agentURI[id]; !exists {
				r.agentURI[id] = agent
			}
		}
	}
	return nil
}

func (r *Registry) identifierOf(ctx context.Context, agent string) (string, error) {
	it, err := r.eng.ListStatements(ctx, store.Pattern{Subject: objPtr(store.URI(agent)), Predicate: strPtr(naoIdentifier)})
	if err != nil {
		return "", err
	}
	defer it.Close()
	for it.Next() {
		return it.Quad().Object.Value, nil
	}
	return "", nil
}

// EnsureAgent returns the agent resource URI for identifier, minting one
// (inside tx) on first use. At most one agent resource exists per
// identifier string for the lifetime of the store.
func (r *Registry) EnsureAgent(ctx context.Context, tx store.Transaction, identifier string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agentURI[identifier]; ok {
		return agent, nil
	}

	agent := uri.NewResource()
	bookkeeping := r.bookkeepingGraphLocked(tx)
	now := store.Literal(time.Now().UTC().Format(time.RFC3339), xsdDateTime)
	if err := tx.AddStatement(store.URI(agent), rdfType, store.URI(naoAgent), bookkeeping); err != nil {
		return "", err
	}
	if err := tx.AddStatement(store.URI(agent), naoIdentifier, store.Literal(identifier, ""), bookkeeping); err != nil {
		return "", err
	}
	if err := tx.AddStatement(store.URI(agent), naoCreated, now, bookkeeping); err != nil {
		return "", err
	}
	r.agentURI[identifier] = agent
	return agent, nil
}

const bookkeepingGraphURI = "nepomuk:/ctx/system-agents"

// bookkeepingGraphLocked returns the fixed, well-known graph agent
// resources live in. It needs no provenance of its own: agent identity is
// core infrastructure, not application-contributed data.
func (r *Registry) bookkeepingGraphLocked(tx store.Transaction) string {
	return bookkeepingGraphURI
}

// GraphForAgentSet returns the data graph whose maintainer set is exactly
// agents and whose discardable flag matches, minting a fresh graph (and
// its metadata graph) if none exists yet. This is the registry's single
// write path; callers implement provenance "splitting" by always routing
// a statement through the graph matching its exact maintainer set rather
// than mutating an existing graph's agent set.
func (r *Registry) GraphForAgentSet(ctx context.Context, tx store.Transaction, agents []string, discardable bool) (string, error) {
	if len(agents) == 0 {
		return "", fmt.Errorf("graphregistry: agent set must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := agentSetKey(agents, discardable)
	if g, ok := r.byAgentSet[key]; ok {
		return g, nil
	}

	dataGraph := uri.NewGraph()
	metaGraph := uri.NewGraph()
	now := store.Literal(time.Now().UTC().Format(time.RFC3339), xsdDateTime)

	typeURI := nrlInstanceBase
	if discardable {
		typeURI = nrlDiscardableBase
	}

	writes := []func() error{
		func() error { return tx.AddStatement(store.URI(metaGraph), rdfType, store.URI(nrlGraphMetadata), metaGraph) },
		func() error { return tx.AddStatement(store.URI(metaGraph), nrlCoreGraphMetaFor, store.URI(dataGraph), metaGraph) },
		func() error { return tx.AddStatement(store.URI(dataGraph), rdfType, store.URI(typeURI), metaGraph) },
		func() error { return tx.AddStatement(store.URI(dataGraph), naoCreated, now, metaGraph) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return "", err
		}
	}

	agentSet := map[string]struct{}{}
	for _, id := range agents {
		agentURI, err := r.ensureAgentLocked(ctx, tx, id)
		if err != nil {
			return "", err
		}
		if err := tx.AddStatement(store.URI(dataGraph), naoMaintBy, store.URI(agentURI), metaGraph); err != nil {
			return "", err
		}
		agentSet[id] = struct{}{}
	}

	r.byAgentSet[key] = dataGraph
	r.graphAgents[dataGraph] = agentSet
	r.graphDiscardable[dataGraph] = discardable
	r.metadataOf[dataGraph] = metaGraph
	return dataGraph, nil
}

// ensureAgentLocked is EnsureAgent's body without re-acquiring r.mu, for
// use from within GraphForAgentSet which already holds it.
func (r *Registry) ensureAgentLocked(ctx context.Context, tx store.Transaction, identifier string) (string, error) {
	if agent, ok := r.agentURI[identifier]; ok {
		return agent, nil
	}
	agent := uri.NewResource()
	bookkeeping := bookkeepingGraphURI
	now := store.Literal(time.Now().UTC().Format(time.RFC3339), xsdDateTime)
	if err := tx.AddStatement(store.URI(agent), rdfType, store.URI(naoAgent), bookkeeping); err != nil {
		return "", err
	}
	if err := tx.AddStatement(store.URI(agent), naoIdentifier, store.Literal(identifier, ""), bookkeeping); err != nil {
		return "", err
	}
	if err := tx.AddStatement(store.URI(agent), naoCreated, now, bookkeeping); err != nil {
		return "", err
	}
	r.agentURI[identifier] = agent
	return agent, nil
}

// AgentsOf returns the maintainer set of a data graph, or (nil, false) if
// it is not one this registry manages.
func (r *Registry) AgentsOf(graph string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.graphAgents[graph]
	if !ok {
		return nil, false
	}
	return setToSlice(set), true
}

// IsDiscardable reports whether graph was created with the discardable
// flag.
func (r *Registry) IsDiscardable(graph string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graphDiscardable[graph]
}

// graphOf returns the single graph currently holding (s,p,o), or "" if
// the statement is not present anywhere.
func graphOf(tx store.Transaction, s store.Term, p string, o store.Term) (string, error) {
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &p, Object: &o})
	if err != nil {
		return "", err
	}
	defer it.Close()
	if it.Next() {
		return it.Quad().Graph, it.Err()
	}
	return "", it.Err()
}

// RouteStatement writes (s,p,o) through the graph belonging to app's
// maintainer set, reusing an existing graph when app is already a
// maintainer, or splitting — moving the statement to a freshly
// get-or-created graph whose maintainer set is the union — when the
// statement already exists under a disjoint set of apps. alreadyForApp
// reports whether the statement was already visible to app (a no-op).
func (r *Registry) RouteStatement(ctx context.Context, tx store.Transaction, s store.Term, p string, o store.Term, discardable bool, app string) (graph string, alreadyForApp bool, err error) {
	existing, err := graphOf(tx, s, p, o)
	if err != nil {
		return "", false, err
	}
	if existing == "" {
		g, err := r.GraphForAgentSet(ctx, tx, []string{app}, discardable)
		if err != nil {
			return "", false, err
		}
		if err := tx.AddStatement(s, p, o, g); err != nil {
			return "", false, err
		}
		return g, false, nil
	}

	agents, ok := r.AgentsOf(existing)
	if ok {
		for _, a := range agents {
			if a == app {
				return existing, true, nil
			}
		}
	}

	union := append(append([]string{}, agents...), app)
	effectiveDiscardable := discardable
	if ok {
		effectiveDiscardable = r.IsDiscardable(existing)
	}
	target, err := r.GraphForAgentSet(ctx, tx, union, effectiveDiscardable)
	if err != nil {
		return "", false, err
	}
	if target == existing {
		return existing, true, nil
	}
	if err := tx.RemoveStatement(s, p, o, existing); err != nil {
		return "", false, err
	}
	if err := tx.AddStatement(s, p, o, target); err != nil {
		return "", false, err
	}
	return target, false, nil
}

// UnrouteStatement drops app from the maintainer set of whatever graph
// currently holds (s,p,o): if app was the sole maintainer the statement
// is deleted outright, otherwise it is moved to the graph for the
// remaining maintainer set. removed reports whether app was actually a
// maintainer (a statement it never contributed to is left untouched).
func (r *Registry) UnrouteStatement(ctx context.Context, tx store.Transaction, s store.Term, p string, o store.Term, app string) (removed bool, err error) {
	existing, err := graphOf(tx, s, p, o)
	if err != nil || existing == "" {
		return false, err
	}

	agents, ok := r.AgentsOf(existing)
	if !ok {
		return false, nil
	}
	remaining := make([]string, 0, len(agents))
	found := false
	for _, a := range agents {
		if a == app {
			found = true
			continue
		}
		remaining = append(remaining, a)
	}
	if !found {
		return false, nil
	}

	if err := tx.RemoveStatement(s, p, o, existing); err != nil {
		return false, err
	}
	if len(remaining) == 0 {
		return true, nil
	}
	target, err := r.GraphForAgentSet(ctx, tx, remaining, r.IsDiscardable(existing))
	if err != nil {
		return false, err
	}
	if err := tx.AddStatement(s, p, o, target); err != nil {
		return false, err
	}
	return true, nil
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func strPtr(s string) *string { return &s }
func objPtr(t store.Term) *store.Term { return &t }
