// Package datamanagement implements the data management core's public
// mutation and read API (SPEC_FULL.md §4.3): addProperty, setProperty,
// removeProperty, removeResources, createResource,
// removeDataByApplication, removeAllDataByApplication, storeResources,
// mergeResources, describeResources. Every operation is transactional —
// it opens one store.Transaction, does all of its work against it, and
// either commits or rolls back — mirroring nornicdb's
// pkg/storage/transaction.go buffer-then-commit pattern generalized
// from node/edge operations to arbitrary quad mutation.
package datamanagement

import (
	"context"
	"sync"
	"time"

	"github.com/nepomuk-go/datacore/pkg/audit"
	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/graphregistry"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/nepomuk-go/datacore/pkg/merger"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/typecache"
	"github.com/nepomuk-go/datacore/pkg/uri"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// Model is the data management core. One Model wraps one store.Engine
// and owns every piece of process-wide shared state the spec calls for:
// the CPT, the graph registry, the type cache and the watcher. Safe for
// concurrent use by many goroutines.
type Model struct {
	eng      store.Engine
	tree     *cpt.Tree
	registry *graphregistry.Registry
	merger   *merger.Merger
	ident    *identifier.Identifier
	watch    *watcher.Watcher
	types    *typecache.TypeCache
	audit    *audit.Logger

	// storeLock serialises mutating operations for the duration of
	// their transaction and lets reads run concurrently with each
	// other, per SPEC_FULL.md §5.
	storeLock sync.RWMutex
}

// SetAuditLogger attaches an audit trail: every mutation, successful
// or rejected, is appended to it after its transaction resolves.
func (m *Model) SetAuditLogger(l *audit.Logger) {
	m.audit = l
}

// logAudit is a no-op when no logger is attached.
func (m *Model) logAudit(eventType audit.EventType, agent string, resources []string, property string, err error) {
	if m.audit == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	_ = m.audit.LogMutation(eventType, agent, resources, property, err == nil, reason)
}

// Config tunes the process-wide caches a Model creates.
type Config struct {
	TypeCacheSize int
	TypeCacheTTL  time.Duration
}

// DefaultConfig mirrors the teacher's modest default cache sizing.
func DefaultConfig() Config {
	return Config{TypeCacheSize: 10000, TypeCacheTTL: 5 * time.Minute}
}

// New wires a Model around eng. Call Rebuild once before serving any
// mutation so the CPT and graph registry reflect the store's current
// ontology and provenance graphs.
func New(eng store.Engine, cfg Config) *Model {
	tree := cpt.New()
	m := &Model{
		eng:      eng,
		tree:     tree,
		registry: graphregistry.New(eng),
		ident:    identifier.New(tree),
		watch:    watcher.New(tree),
		types:    typecache.New(cfg.TypeCacheSize, cfg.TypeCacheTTL),
	}
	m.merger = merger.New(tree, m.registry)
	return m
}

// Rebuild reloads the CPT from the store's ontology statements and the
// graph registry from the store's existing metadata graphs. Call this
// at startup and after importing an ontology file.
func (m *Model) Rebuild(ctx context.Context) error {
	if err := m.tree.Rebuild(ctx, m.eng); err != nil {
		return nepomukerr.Wrap(nepomukerr.StoreError, err, "rebuild CPT")
	}
	if err := m.registry.Load(ctx); err != nil {
		return nepomukerr.Wrap(nepomukerr.StoreError, err, "rebuild graph registry")
	}
	m.types.Clear()
	return nil
}

// Watch registers a new watcher client. See package watcher for filter
// semantics.
func (m *Model) Watch(ctx context.Context, filters watcher.Filters, sink func(watcher.Batch)) watcher.Handle {
	return m.watch.Register(ctx, filters, sink)
}

// Close releases the model's background resources (the watcher's
// dispatch goroutine) but does not close the underlying store.
func (m *Model) Close() {
	m.watch.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// withTransaction runs fn against a fresh transaction, committing on
// success and rolling back on any error (including fn panicking, per the
// spec's "on panic/abort the transaction is rolled back").
func (m *Model) withTransaction(ctx context.Context, fn func(tx store.Transaction) error) (err error) {
	tx, err := m.eng.BeginTransaction(ctx)
	if err != nil {
		return nepomukerr.Wrap(nepomukerr.StoreError, err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return nepomukerr.Wrap(nepomukerr.StoreError, err, "commit transaction")
	}
	return nil
}

// withWriteLock serialises one mutating operation's whole transaction
// against every other mutating operation.
func (m *Model) withWriteLock(ctx context.Context, fn func(tx store.Transaction) error) error {
	m.storeLock.Lock()
	defer m.storeLock.Unlock()
	return m.withTransaction(ctx, fn)
}

// mutateAndNotify runs fn under the write lock inside a transaction,
// committing its returned batch and then — only once the commit has
// actually succeeded — handing it to the watcher, per SPEC_FULL.md
// §4.6's "batched and emitted after the store transaction commits".
func (m *Model) mutateAndNotify(ctx context.Context, fn func(tx store.Transaction) (watcher.Batch, error)) error {
	var batch watcher.Batch
	err := m.withWriteLock(ctx, func(tx store.Transaction) error {
		b, err := fn(tx)
		batch = b
		return err
	})
	if err != nil {
		return err
	}
	m.watch.Notify(batch)
	return nil
}

// withReadLock lets reads run concurrently with each other but not with
// an in-flight mutation.
func (m *Model) withReadLock(ctx context.Context, fn func(tx store.Transaction) error) error {
	m.storeLock.RLock()
	defer m.storeLock.RUnlock()
	tx, err := m.eng.BeginTransaction(ctx)
	if err != nil {
		return nepomukerr.Wrap(nepomukerr.StoreError, err, "begin read transaction")
	}
	defer tx.Rollback()
	return fn(tx)
}

// typesOf returns subject's current rdf:type set, consulting (and
// populating) the type cache first.
func (m *Model) typesOf(tx store.Transaction, subject string) ([]string, error) {
	if cached, ok := m.types.Get(subject); ok {
		return cached, nil
	}
	subj := store.URI(subject)
	pred := rdfType
	it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var types []string
	for it.Next() {
		types = append(types, it.Quad().Object.Value)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	m.types.Put(subject, types)
	return types, nil
}

// touchLastModified sets nao:lastModified = now for subject, replacing
// any prior value, written into a graph owned solely by app.
func (m *Model) touchLastModified(ctx context.Context, tx store.Transaction, subject, app string) error {
	subj := store.URI(subject)
	pred := naoLastModified
	it, err := tx.ListStatements(store.Pattern{Subject: &subj, Predicate: &pred})
	if err != nil {
		return err
	}
	var old *store.Quad
	for it.Next() {
		q := it.Quad()
		old = &q
	}
	if err := it.Close(); err != nil {
		return err
	}
	if old != nil {
		if err := tx.RemoveStatement(subj, pred, old.Object, old.Graph); err != nil {
			return err
		}
	}
	value := store.Literal(now(), "http://www.w3.org/2001/XMLSchema#dateTime")
	_, _, err = m.registry.RouteStatement(ctx, tx, subj, pred, value, false, app)
	return err
}

// newResourceURI mints a fresh resource URI via pkg/uri.
func newResourceURI() string { return uri.NewResource() }

func requireApp(app string) error {
	if app == "" {
		return nepomukerr.New(nepomukerr.InvalidArgument, "app identifier must not be empty")
	}
	return nil
}

func requireResources(resources []string) error {
	if len(resources) == 0 {
		return nepomukerr.New(nepomukerr.InvalidArgument, "resources must not be empty")
	}
	return nil
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nepomukerr.New(nepomukerr.Cancelled, "operation cancelled: %v", ctx.Err())
	default:
		return nil
	}
}
