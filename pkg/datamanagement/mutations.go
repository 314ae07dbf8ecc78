package datamanagement

import (
	"context"

	"github.com/nepomuk-go/datacore/pkg/audit"
	"github.com/nepomuk-go/datacore/pkg/merger"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/pool"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// AddProperty adds (r, property, v) for every r in resources and every v
// in values, routed through app's provenance graph. See
// SPEC_FULL.md §4.3.
func (m *Model) AddProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if err := requireResources(resources); err != nil {
		return err
	}
	if isInternalProperty(property) {
		return nepomukerr.New(nepomukerr.InvalidArgument, "%s is managed internally", property)
	}

	terms, err := m.tree.VariantListToNodeSet(values, property)
	if err != nil {
		return nepomukerr.Wrap(nepomukerr.InvalidArgument, err, "convert values for %s", property)
	}

	err = m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		var batch watcher.Batch
		subjectTypes := map[string][]string{}
		var quads []merger.Quad

		for _, subj := range resources {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			types, err := m.typesOf(tx, subj)
			if err != nil {
				return nil, nepomukerr.Store(err)
			}
			subjectTypes[subj] = types

			if err := m.checkCumulativeCardinality(tx, subj, property, terms); err != nil {
				return nil, err
			}
			for _, t := range terms {
				quads = append(quads, merger.Quad{Subject: subj, Predicate: property, Object: t})
			}
		}

		if err := m.runMerge(ctx, tx, quads, subjectTypes, merger.Options{App: app}); err != nil {
			return nil, err
		}

		for _, subj := range resources {
			if err := m.touchLastModified(ctx, tx, subj, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			types := subjectTypes[subj]
			for _, t := range terms {
				batch = append(batch, watcher.Change{Subject: subj, Predicate: property, Object: t.Value, Kind: watcher.Added, Types: types})
			}
		}
		return batch, nil
	})
	m.logAudit(audit.EventAddProperty, app, resources, property, err)
	return err
}

// SetProperty replaces the values of property that app maintains on each
// resource with values (removeProperty then addProperty in one
// transaction); values maintained only by other apps stay in place. An
// empty values list removes every value app maintains.
func (m *Model) SetProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if err := requireResources(resources); err != nil {
		return err
	}
	if isInternalProperty(property) {
		return nepomukerr.New(nepomukerr.InvalidArgument, "%s is managed internally", property)
	}

	var terms []store.Term
	if len(values) > 0 {
		var err error
		terms, err = m.tree.VariantListToNodeSet(values, property)
		if err != nil {
			return nepomukerr.Wrap(nepomukerr.InvalidArgument, err, "convert values for %s", property)
		}
	}

	err := m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		var batch watcher.Batch
		subjectTypes := map[string][]string{}

		for _, subj := range resources {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			types, err := m.typesOf(tx, subj)
			if err != nil {
				return nil, nepomukerr.Store(err)
			}
			subjectTypes[subj] = types

			removed, err := m.removeAllValues(ctx, tx, subj, property, app)
			if err != nil {
				return nil, err
			}
			for _, v := range removed {
				batch = append(batch, watcher.Change{Subject: subj, Predicate: property, Object: v, Kind: watcher.Removed, Types: types})
			}

			if err := m.checkCumulativeCardinality(tx, subj, property, terms); err != nil {
				return nil, err
			}
		}

		var quads []merger.Quad
		for _, subj := range resources {
			for _, t := range terms {
				quads = append(quads, merger.Quad{Subject: subj, Predicate: property, Object: t})
			}
		}
		if err := m.runMerge(ctx, tx, quads, subjectTypes, merger.Options{App: app, Overwrite: true}); err != nil {
			return nil, err
		}

		for _, subj := range resources {
			if err := m.touchLastModified(ctx, tx, subj, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			for _, t := range terms {
				batch = append(batch, watcher.Change{Subject: subj, Predicate: property, Object: t.Value, Kind: watcher.Added, Types: subjectTypes[subj]})
			}
		}
		return batch, nil
	})
	m.logAudit(audit.EventSetProperty, app, resources, property, err)
	return err
}

// RemoveProperty drops the given (r,property,v) statements from app's
// maintainer set, splitting or deleting the backing graph per
// SPEC_FULL.md §4.3. Absent statements are not an error. An empty
// values list removes every value of property.
func (m *Model) RemoveProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if err := requireResources(resources); err != nil {
		return err
	}

	err := m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		var batch watcher.Batch
		for _, subj := range resources {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			types, err := m.typesOf(tx, subj)
			if err != nil {
				return nil, nepomukerr.Store(err)
			}

			var removed []string
			if len(values) == 0 {
				removed, err = m.removeAllValues(ctx, tx, subj, property, app)
			} else {
				var terms []store.Term
				terms, err = m.tree.VariantListToNodeSet(values, property)
				if err != nil {
					return nil, nepomukerr.Wrap(nepomukerr.InvalidArgument, err, "convert values for %s", property)
				}
				removed, err = m.removeValues(ctx, tx, subj, property, terms, app)
			}
			if err != nil {
				return nil, err
			}
			for _, v := range removed {
				batch = append(batch, watcher.Change{Subject: subj, Predicate: property, Object: v, Kind: watcher.Removed, Types: types})
			}
			if len(removed) > 0 {
				if err := m.touchLastModified(ctx, tx, subj, app); err != nil {
					return nil, nepomukerr.Store(err)
				}
			}
		}
		return batch, nil
	})
	m.logAudit(audit.EventRemoveProperty, app, resources, property, err)
	return err
}

// CreateResource mints a fresh resource URI, asserts its types (subclass
// closure collapsed away — only the given types are written, since the
// closure is implicit in the CPT), prefLabel/description if non-empty,
// and nao:created/nao:lastModified.
func (m *Model) CreateResource(ctx context.Context, types []string, label, description, app string) (string, error) {
	if err := requireApp(app); err != nil {
		return "", err
	}

	newURI := newResourceURI()
	err := m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		subj := store.URI(newURI)
		var batch watcher.Batch

		for _, t := range types {
			if _, _, err := m.registry.RouteStatement(ctx, tx, subj, rdfType, store.URI(t), false, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			batch = append(batch, watcher.Change{Subject: newURI, Predicate: rdfType, Object: t, Kind: watcher.Added, Types: types})
		}
		if label != "" {
			if _, _, err := m.registry.RouteStatement(ctx, tx, subj, naoPrefLabel, store.Literal(label, ""), false, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
		}
		if description != "" {
			if _, _, err := m.registry.RouteStatement(ctx, tx, subj, naoDescription, store.Literal(description, ""), false, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
		}
		stamp := store.Literal(now(), "http://www.w3.org/2001/XMLSchema#dateTime")
		if _, _, err := m.registry.RouteStatement(ctx, tx, subj, naoCreated, stamp, false, app); err != nil {
			return nil, nepomukerr.Store(err)
		}
		if _, _, err := m.registry.RouteStatement(ctx, tx, subj, naoLastModified, stamp, false, app); err != nil {
			return nil, nepomukerr.Store(err)
		}
		m.types.Put(newURI, types)
		return batch, nil
	})
	m.logAudit(audit.EventCreateResource, app, []string{newURI}, "", err)
	if err != nil {
		return "", err
	}
	return newURI, nil
}

// RemoveFlag modifies removeResources' behaviour.
type RemoveFlag int

const (
	RemoveNone RemoveFlag = 0
	// RemoveSubResources also removes any resource reachable by
	// nao:hasSubResource that has no other incoming such link.
	RemoveSubResources RemoveFlag = 1 << iota
)

// RemoveResources deletes every quad naming r as subject or object, for
// each r in resources, honouring graph ownership exactly like
// removeProperty on every statement it touches.
func (m *Model) RemoveResources(ctx context.Context, resources []string, flags RemoveFlag, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if err := requireResources(resources); err != nil {
		return err
	}

	err := m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		toRemove := append([]string{}, resources...)
		if flags&RemoveSubResources != 0 {
			extra, err := m.transitiveSubResources(ctx, tx, resources)
			if err != nil {
				return nil, err
			}
			toRemove = append(toRemove, extra...)
		}

		var batch watcher.Batch
		for _, subj := range toRemove {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			changes, err := m.removeResourceEntirely(ctx, tx, subj, app)
			if err != nil {
				return nil, err
			}
			batch = append(batch, changes...)
			m.types.Invalidate(subj)
		}
		return batch, nil
	})
	m.logAudit(audit.EventRemoveResources, app, resources, "", err)
	return err
}

// transitiveSubResources walks nao:hasSubResource from roots, collecting
// every descendant whose only incoming such link comes from inside the
// set being removed.
func (m *Model) transitiveSubResources(ctx context.Context, tx store.Transaction, roots []string) ([]string, error) {
	queue := append([]string{}, roots...)
	seen := map[string]struct{}{}
	var result []string

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		subj := store.URI(parent)
		pred := naoHasSubResource
		it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		children := pool.GetStringSlice()
		for it.Next() {
			children = append(children, it.Quad().Object.Value)
		}
		if err := it.Close(); err != nil {
			pool.PutStringSlice(children)
			return nil, nepomukerr.Store(err)
		}
		for _, child := range children {
			if _, ok := seen[child]; ok {
				continue
			}
			// only a candidate if every incoming hasSubResource comes
			// from a resource already slated for removal
			op := naoHasSubResource
			childObj := store.URI(child)
			allIt, err := tx.ListStatements(store.Pattern{Predicate: &op, Object: &childObj})
			if err != nil {
				return nil, nepomukerr.Store(err)
			}
			solelyOwned := true
			for allIt.Next() {
				if !inSlice(roots, allIt.Quad().Subject.Value) && !inSlice(result, allIt.Quad().Subject.Value) {
					solelyOwned = false
				}
			}
			if err := allIt.Close(); err != nil {
				return nil, nepomukerr.Store(err)
			}
			if solelyOwned {
				seen[child] = struct{}{}
				result = append(result, child)
				queue = append(queue, child)
			}
		}
		pool.PutStringSlice(children)
	}
	return result, nil
}

func inSlice(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// removeResourceEntirely drops app's maintainership from every quad with
// subj as subject or object, across every graph: a quad app alone
// maintains is deleted, a shared one moves to the graph of its remaining
// maintainers, and one app does not maintain is left untouched.
func (m *Model) removeResourceEntirely(ctx context.Context, tx store.Transaction, subj, app string) (watcher.Batch, error) {
	types, _ := m.typesOf(tx, subj)
	var batch watcher.Batch

	s := store.URI(subj)
	toDelete := pool.GetQuadSlice()
	defer func() { pool.PutQuadSlice(toDelete) }()

	asSubject, err := tx.ListStatements(store.Pattern{Subject: &s})
	if err != nil {
		return nil, nepomukerr.Store(err)
	}
	for asSubject.Next() {
		toDelete = append(toDelete, asSubject.Quad())
	}
	if err := asSubject.Close(); err != nil {
		return nil, nepomukerr.Store(err)
	}

	asObject, err := tx.ListStatements(store.Pattern{Object: &s})
	if err != nil {
		return nil, nepomukerr.Store(err)
	}
	for asObject.Next() {
		toDelete = append(toDelete, asObject.Quad())
	}
	if err := asObject.Close(); err != nil {
		return nil, nepomukerr.Store(err)
	}

	for _, q := range toDelete {
		removed, err := m.registry.UnrouteStatement(ctx, tx, q.Subject, q.Predicate, q.Object, app)
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		if removed {
			batch = append(batch, watcher.Change{Subject: q.Subject.Value, Predicate: q.Predicate, Object: q.Object.Value, Kind: watcher.Removed, Types: types})
		}
	}
	return batch, nil
}

// RemoveDataByApplication drops app's contributions across the given
// resources without deleting statements other apps still maintain.
func (m *Model) RemoveDataByApplication(ctx context.Context, resources []string, flags RemoveFlag, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if err := requireResources(resources); err != nil {
		return err
	}
	err := m.removeByApplication(ctx, resources, app)
	m.logAudit(audit.EventRemoveDataByApp, app, resources, "", err)
	return err
}

// RemoveAllDataByApplication is RemoveDataByApplication unrestricted in
// resource set: every resource app has ever contributed to.
func (m *Model) RemoveAllDataByApplication(ctx context.Context, flags RemoveFlag, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	resources, err := m.resourcesMaintainedBy(ctx, app)
	if err != nil {
		m.logAudit(audit.EventRemoveDataByApp, app, nil, "", err)
		return err
	}
	err = m.removeByApplication(ctx, resources, app)
	m.logAudit(audit.EventRemoveDataByApp, app, resources, "", err)
	return err
}

func (m *Model) resourcesMaintainedBy(ctx context.Context, app string) ([]string, error) {
	var result []string
	err := m.withReadLock(ctx, func(tx store.Transaction) error {
		it, err := tx.ListStatements(store.Pattern{})
		if err != nil {
			return nepomukerr.Store(err)
		}
		defer it.Close()
		seen := map[string]struct{}{}
		for it.Next() {
			q := it.Quad()
			agents, ok := m.registry.AgentsOf(q.Graph)
			if !ok || !inSlice(agents, app) {
				continue
			}
			if _, ok := seen[q.Subject.Value]; !ok {
				seen[q.Subject.Value] = struct{}{}
				result = append(result, q.Subject.Value)
			}
		}
		return it.Err()
	})
	return result, err
}

func (m *Model) removeByApplication(ctx context.Context, resources []string, app string) error {
	return m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		var batch watcher.Batch
		for _, subj := range resources {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			changes, err := m.dropApplicationFromResource(ctx, tx, subj, app)
			if err != nil {
				return nil, err
			}
			batch = append(batch, changes...)
		}
		return batch, nil
	})
}

// dropApplicationFromResource removes app's maintainership from every
// statement naming subj as subject; if the resource ends up with no
// statements as subject, its cached types are invalidated. Statements
// that name subj as object are left in place.
func (m *Model) dropApplicationFromResource(ctx context.Context, tx store.Transaction, subj, app string) (watcher.Batch, error) {
	types, _ := m.typesOf(tx, subj)
	s := store.URI(subj)
	it, err := tx.ListStatements(store.Pattern{Subject: &s})
	if err != nil {
		return nil, nepomukerr.Store(err)
	}
	quads := pool.GetQuadSlice()
	defer func() { pool.PutQuadSlice(quads) }()
	for it.Next() {
		quads = append(quads, it.Quad())
	}
	if err := it.Close(); err != nil {
		return nil, nepomukerr.Store(err)
	}

	var batch watcher.Batch
	for _, q := range quads {
		removed, err := m.registry.UnrouteStatement(ctx, tx, q.Subject, q.Predicate, q.Object, app)
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		if removed {
			batch = append(batch, watcher.Change{Subject: subj, Predicate: q.Predicate, Object: q.Object.Value, Kind: watcher.Removed, Types: types})
		}
	}

	remaining, err := tx.ListStatements(store.Pattern{Subject: &s})
	if err != nil {
		return nil, nepomukerr.Store(err)
	}
	any := remaining.Next()
	if err := remaining.Close(); err != nil {
		return nil, nepomukerr.Store(err)
	}
	if !any {
		m.types.Invalidate(subj)
	}
	return batch, nil
}

// MergeResources rewrites every quad naming b as subject or object to
// name a instead, then removes b. Used by identification when duplicates
// are detected post-hoc.
func (m *Model) MergeResources(ctx context.Context, a, b, app string) error {
	if err := requireApp(app); err != nil {
		return err
	}
	if a == "" || b == "" {
		return nepomukerr.New(nepomukerr.InvalidArgument, "both resources must be non-empty")
	}

	err := m.mutateAndNotify(ctx, func(tx store.Transaction) (watcher.Batch, error) {
		types, _ := m.typesOf(tx, a)
		bURI := store.URI(b)
		aURI := store.URI(a)

		var batch watcher.Batch

		asSubj, err := tx.ListStatements(store.Pattern{Subject: &bURI})
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		var subjQuads []store.Quad
		for asSubj.Next() {
			subjQuads = append(subjQuads, asSubj.Quad())
		}
		if err := asSubj.Close(); err != nil {
			return nil, nepomukerr.Store(err)
		}

		asObj, err := tx.ListStatements(store.Pattern{Object: &bURI})
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		var objQuads []store.Quad
		for asObj.Next() {
			objQuads = append(objQuads, asObj.Quad())
		}
		if err := asObj.Close(); err != nil {
			return nil, nepomukerr.Store(err)
		}

		for _, q := range subjQuads {
			if err := tx.RemoveStatement(q.Subject, q.Predicate, q.Object, q.Graph); err != nil {
				return nil, nepomukerr.Store(err)
			}
			if q.Predicate == nieURL {
				if unique := m.checkURLFree(tx, q.Object, a); !unique {
					return nil, nepomukerr.New(nepomukerr.UniquenessViolation, "nie:url %q collides after merge", q.Object.Value)
				}
			}
			if _, _, err := m.registry.RouteStatement(ctx, tx, aURI, q.Predicate, q.Object, false, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			batch = append(batch, watcher.Change{Subject: a, Predicate: q.Predicate, Object: q.Object.Value, Kind: watcher.Added, Types: types})
		}
		for _, q := range objQuads {
			if err := tx.RemoveStatement(q.Subject, q.Predicate, q.Object, q.Graph); err != nil {
				return nil, nepomukerr.Store(err)
			}
			if _, _, err := m.registry.RouteStatement(ctx, tx, q.Subject, q.Predicate, aURI, false, app); err != nil {
				return nil, nepomukerr.Store(err)
			}
			batch = append(batch, watcher.Change{Subject: q.Subject.Value, Predicate: q.Predicate, Object: a, Kind: watcher.Added, Types: types})
		}

		m.types.Invalidate(a)
		m.types.Invalidate(b)
		return batch, nil
	})
	m.logAudit(audit.EventMergeResources, app, []string{a, b}, "", err)
	return err
}

func (m *Model) checkURLFree(tx store.Transaction, url store.Term, except string) bool {
	pred := nieURL
	it, err := tx.ListStatements(store.Pattern{Predicate: &pred, Object: &url})
	if err != nil {
		return false
	}
	defer it.Close()
	for it.Next() {
		if it.Quad().Subject.Value != except {
			return false
		}
	}
	return true
}

// runMerge is a thin wrapper so every mutation that writes regular
// properties goes through the same constraint checks.
func (m *Model) runMerge(ctx context.Context, tx store.Transaction, quads []merger.Quad, types map[string][]string, opts merger.Options) error {
	if len(quads) == 0 {
		return nil
	}
	return m.merger.Merge(ctx, tx, quads, types, opts)
}

// checkCumulativeCardinality enforces that a property's declared
// max-cardinality (when >1) is not exceeded by the existing plus
// newly-added distinct values.
func (m *Model) checkCumulativeCardinality(tx store.Transaction, subject, property string, newValues []store.Term) error {
	max := m.treeMaxCardinality(property)
	if max <= 1 {
		return nil // 0 = unbounded, 1 handled by the merger's single-valued path
	}

	subj := store.URI(subject)
	pred := property
	it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
	if err != nil {
		return nepomukerr.Store(err)
	}
	defer it.Close()

	existing := map[string]struct{}{}
	for it.Next() {
		existing[it.Quad().Object.Value] = struct{}{}
	}
	if err := it.Err(); err != nil {
		return nepomukerr.Store(err)
	}

	total := len(existing)
	for _, v := range newValues {
		if _, ok := existing[v.Value]; !ok {
			total++
			existing[v.Value] = struct{}{}
		}
	}
	if total > max {
		return nepomukerr.New(nepomukerr.CardinalityExceeded, "%s on %s would exceed max cardinality %d", property, subject, max)
	}
	return nil
}

func (m *Model) treeMaxCardinality(property string) int {
	return m.tree.MaxCardinality(property)
}

// removeAllValues removes every value of property on subj that app
// maintains, returning the lexical/URI value of each removed object.
func (m *Model) removeAllValues(ctx context.Context, tx store.Transaction, subj, property, app string) ([]string, error) {
	s := store.URI(subj)
	pred := property
	it, err := tx.ListStatements(store.Pattern{Subject: &s, Predicate: &pred})
	if err != nil {
		return nil, nepomukerr.Store(err)
	}
	var objs []store.Term
	for it.Next() {
		objs = append(objs, it.Quad().Object)
	}
	if err := it.Close(); err != nil {
		return nil, nepomukerr.Store(err)
	}
	return m.removeValues(ctx, tx, subj, property, objs, app)
}

func (m *Model) removeValues(ctx context.Context, tx store.Transaction, subj, property string, values []store.Term, app string) ([]string, error) {
	s := store.URI(subj)
	var removed []string
	for _, v := range values {
		ok, err := m.registry.UnrouteStatement(ctx, tx, s, property, v, app)
		if err != nil {
			return nil, nepomukerr.Store(err)
		}
		if ok {
			removed = append(removed, v.Value)
		}
	}
	return removed, nil
}
