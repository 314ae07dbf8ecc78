// Package watcher implements the resource watcher: client registrations
// filtered by resource/property/type, fed by a single-consumer queue so
// concurrent mutations still produce one total order of notifications.
// Grounded on resourcewatcherconnection.cpp / resourcewatchermanager.cpp
// (the set/add/remove resources|properties|types operations and
// disconnect-closes-the-registration behaviour) and the teacher's
// pkg/pool single-shared-state-behind-one-lock style.
package watcher

import (
	"context"
	"sync"

	"github.com/nepomuk-go/datacore/pkg/cpt"
)

// ChangeKind distinguishes an addition from a removal.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

// Change is one statement-level mutation the data management model
// reports after a transaction commits.
type Change struct {
	Subject   string
	Predicate string
	Object    string
	Kind      ChangeKind
	// Types is the subject's rdf:type set at the time of the change,
	// used for type-filter matching.
	Types []string
}

// Batch is every change produced by one top-level mutation call,
// delivered to matching subscriptions as a unit and in statement-add
// order.
type Batch []Change

// Handle identifies one client registration; Close drops it.
type Handle struct {
	id int64
	w  *Watcher
}

// Close unregisters the subscription. Safe to call more than once.
func (h Handle) Close() {
	h.w.remove(h.id)
}

type registration struct {
	id         int64
	resources  map[string]struct{} // nil means "any"
	properties map[string]struct{}
	types      map[string]struct{}
	sink       func(Batch)
}

func (r *registration) matches(c Change) bool {
	if r.resources != nil {
		if _, ok := r.resources[c.Subject]; !ok {
			return false
		}
	}
	if r.properties != nil {
		if _, ok := r.properties[c.Predicate]; !ok {
			return false
		}
	}
	if r.types != nil {
		matched := false
		for t := range r.types {
			for _, subjType := range c.Types {
				if subjType == t {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		return matched
	}
	return true
}

// Watcher fans batches of mutation notifications out to every matching
// client registration, and serialises concurrent callers' notifications
// onto a single queue so subscribers observe one consistent order.
type Watcher struct {
	tree *cpt.Tree

	mu      sync.Mutex
	regs    map[int64]*registration
	nextID  int64

	queue chan dispatchJob
	done  chan struct{}
}

type dispatchJob struct {
	batch Batch
}

// New starts a watcher backed by tree for CPT-aware type-filter
// matching. Call Close to stop its dispatch goroutine.
func New(tree *cpt.Tree) *Watcher {
	w := &Watcher{
		tree:  tree,
		regs:  make(map[int64]*registration),
		queue: make(chan dispatchJob, 256),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Watcher) run() {
	for job := range w.queue {
		w.mu.Lock()
		targets := make([]*registration, 0, len(w.regs))
		for _, r := range w.regs {
			targets = append(targets, r)
		}
		w.mu.Unlock()

		for _, r := range targets {
			var matched Batch
			for _, c := range job.batch {
				if r.matches(c) {
					matched = append(matched, c)
				}
			}
			if len(matched) > 0 {
				r.sink(matched)
			}
		}
	}
	close(w.done)
}

// Close stops accepting new notifications and waits for the dispatch
// goroutine to drain the queue.
func (w *Watcher) Close() {
	close(w.queue)
	<-w.done
}

// Filters is the initial (resources?, properties?, types?) tuple for a
// new registration; a nil slice means "no filter on this dimension".
type Filters struct {
	Resources  []string
	Properties []string
	Types      []string
}

// Register creates a client subscription. sink is invoked once per
// matching batch, from the watcher's single dispatch goroutine — it
// must not block for long, since it delays every other subscriber's
// notifications.
func (w *Watcher) Register(ctx context.Context, filters Filters, sink func(Batch)) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.regs[id] = &registration{
		id:         id,
		resources:  toSet(filters.Resources),
		properties: toSet(filters.Properties),
		types:      toSet(filters.Types),
		sink:       sink,
	}
	return Handle{id: id, w: w}
}

func (w *Watcher) remove(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.regs, id)
}

// SetResources replaces a registration's resource filter (nil = any).
func (w *Watcher) SetResources(h Handle, resources []string) {
	w.mutate(h.id, func(r *registration) { r.resources = toSet(resources) })
}

// AddResource adds one resource to a registration's filter, creating
// the filter if it was previously "any".
func (w *Watcher) AddResource(h Handle, resource string) {
	w.mutate(h.id, func(r *registration) { r.resources = addToSet(r.resources, resource) })
}

// RemoveResource drops one resource from a registration's filter.
func (w *Watcher) RemoveResource(h Handle, resource string) {
	w.mutate(h.id, func(r *registration) {
		if r.resources != nil {
			delete(r.resources, resource)
		}
	})
}

// SetProperties replaces a registration's property filter (nil = any).
func (w *Watcher) SetProperties(h Handle, properties []string) {
	w.mutate(h.id, func(r *registration) { r.properties = toSet(properties) })
}

// AddProperty adds one property to a registration's filter.
func (w *Watcher) AddProperty(h Handle, property string) {
	w.mutate(h.id, func(r *registration) { r.properties = addToSet(r.properties, property) })
}

// RemoveProperty drops one property from a registration's filter.
func (w *Watcher) RemoveProperty(h Handle, property string) {
	w.mutate(h.id, func(r *registration) {
		if r.properties != nil {
			delete(r.properties, property)
		}
	})
}

// SetTypes replaces a registration's type filter (nil = any). Matching
// is CPT-aware: a registration filtered on a superclass also receives
// changes for its subclasses.
func (w *Watcher) SetTypes(h Handle, types []string) {
	w.mutate(h.id, func(r *registration) { r.types = toSet(types) })
}

// AddType adds one type to a registration's filter.
func (w *Watcher) AddType(h Handle, typ string) {
	w.mutate(h.id, func(r *registration) { r.types = addToSet(r.types, typ) })
}

// RemoveType drops one type from a registration's filter.
func (w *Watcher) RemoveType(h Handle, typ string) {
	w.mutate(h.id, func(r *registration) {
		if r.types != nil {
			delete(r.types, typ)
		}
	})
}

func (w *Watcher) mutate(id int64, f func(*registration)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.regs[id]; ok {
		f(r)
	}
}

// Notify enqueues batch for dispatch. It never blocks past the queue's
// buffer: callers invoke it after their store transaction has already
// committed, so a full queue only delays notification delivery, never
// the mutation itself.
func (w *Watcher) Notify(batch Batch) {
	if len(batch) == 0 {
		return
	}
	w.expandTypes(batch)
	w.queue <- dispatchJob{batch: batch}
}

// expandTypes fills in each change's effective type closure so
// superclass filters match subclass instances without every
// registration re-querying the CPT itself.
func (w *Watcher) expandTypes(batch Batch) {
	for i, c := range batch {
		all := w.tree.AllParentsOfTypes(c.Types)
		expanded := make([]string, 0, len(all))
		for t := range all {
			expanded = append(expanded, t)
		}
		batch[i].Types = expanded
	}
}

func toSet(items []string) map[string]struct{} {
	if items == nil {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

func addToSet(set map[string]struct{}, item string) map[string]struct{} {
	if set == nil {
		set = map[string]struct{}{}
	}
	set[item] = struct{}{}
	return set
}
