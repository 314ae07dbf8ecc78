// Package store - in-memory quad engine, modelled on the teacher's
// MemoryEngine (pkg/storage/memory.go) but indexing quads instead of
// labeled-property-graph nodes and edges.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// quadKey is a canonical string encoding of a quad used as a map key.
// Literal values embed kind/datatype so two literals of different types
// never collide.
func quadKey(q Quad) string {
	var b strings.Builder
	writeTerm(&b, q.Subject)
	b.WriteByte(0)
	b.WriteString(q.Predicate)
	b.WriteByte(0)
	writeTerm(&b, q.Object)
	b.WriteByte(0)
	b.WriteString(q.Graph)
	return b.String()
}

func writeTerm(b *strings.Builder, t Term) {
	if t.Kind == KindURI {
		b.WriteByte('U')
		b.WriteString(t.Value)
		return
	}
	b.WriteByte('L')
	b.WriteString(t.Datatype)
	b.WriteByte(0)
	b.WriteString(t.Value)
}

// MemoryEngine is a thread-safe, non-persistent Engine. It favours clarity
// over throughput: ListStatements does a linear scan filtered by pattern,
// which is adequate for the CPT rebuild and identification queries this
// core issues (bounded by ontology and candidate-set size, not corpus
// size). Graph removal is indexed since removeContext and removeResources
// are hot paths.
type MemoryEngine struct {
	mu     sync.RWMutex
	quads  map[string]Quad
	byCtx  map[string]map[string]struct{} // graph -> set of quadKey
	closed bool
}

// NewMemoryEngine returns a ready-to-use in-memory Engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		quads: make(map[string]Quad),
		byCtx: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryEngine) AddStatement(_ context.Context, s Term, p string, o Term, g string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.addLocked(Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (m *MemoryEngine) addLocked(q Quad) {
	k := quadKey(q)
	if _, exists := m.quads[k]; exists {
		return
	}
	m.quads[k] = q
	set, ok := m.byCtx[q.Graph]
	if !ok {
		set = make(map[string]struct{})
		m.byCtx[q.Graph] = set
	}
	set[k] = struct{}{}
}

func (m *MemoryEngine) RemoveStatement(_ context.Context, s Term, p string, o Term, g string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.removeLocked(Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (m *MemoryEngine) removeLocked(q Quad) {
	k := quadKey(q)
	if _, exists := m.quads[k]; !exists {
		return
	}
	delete(m.quads, k)
	if set, ok := m.byCtx[q.Graph]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(m.byCtx, q.Graph)
		}
	}
}

func (m *MemoryEngine) RemoveContext(_ context.Context, g string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.removeContextLocked(g)
	return nil
}

func (m *MemoryEngine) removeContextLocked(g string) {
	set, ok := m.byCtx[g]
	if !ok {
		return
	}
	for k := range set {
		delete(m.quads, k)
	}
	delete(m.byCtx, g)
}

func (m *MemoryEngine) ContainsStatement(_ context.Context, s Term, p string, o Term, g string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.quads[quadKey(Quad{Subject: s, Predicate: p, Object: o, Graph: g})]
	return ok, nil
}

func matches(q Quad, p Pattern) bool {
	if p.Subject != nil && !termEqual(*p.Subject, q.Subject) {
		return false
	}
	if p.Predicate != nil && *p.Predicate != q.Predicate {
		return false
	}
	if p.Object != nil && !termEqual(*p.Object, q.Object) {
		return false
	}
	if p.Graph != nil && *p.Graph != q.Graph {
		return false
	}
	return true
}

func termEqual(a, b Term) bool {
	return a.Kind == b.Kind && a.Value == b.Value && a.Datatype == b.Datatype && a.Lang == b.Lang
}

func (m *MemoryEngine) ListStatements(_ context.Context, pattern Pattern) (StatementIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Quad
	if pattern.Graph != nil {
		for k := range m.byCtx[*pattern.Graph] {
			if q, ok := m.quads[k]; ok && matches(q, pattern) {
				out = append(out, q)
			}
		}
	} else {
		for _, q := range m.quads {
			if matches(q, pattern) {
				out = append(out, q)
			}
		}
	}
	// Deterministic order makes tests and the identification duplicate-
	// resolution tie-break reproducible.
	sort.Slice(out, func(i, j int) bool { return quadKey(out[i]) < quadKey(out[j]) })
	return &sliceIterator{quads: out, idx: -1}, nil
}

func (m *MemoryEngine) ExecuteQuery(ctx context.Context, query string, lang QueryLanguage) (QueryResult, error) {
	return runQuery(func(p Pattern) (StatementIterator, error) {
		return m.ListStatements(ctx, p)
	}, query)
}

func (m *MemoryEngine) BeginTransaction(_ context.Context) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return newMemoryTx(m), nil
}

func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type sliceIterator struct {
	quads []Quad
	idx   int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.quads)
}
func (it *sliceIterator) Quad() Quad  { return it.quads[it.idx] }
func (it *sliceIterator) Err() error  { return nil }
func (it *sliceIterator) Close() error { return nil }

// memoryTx buffers adds/removes against its parent MemoryEngine and applies
// them atomically on Commit, mirroring the teacher's Transaction buffering
// in pkg/storage/transaction.go.
type memoryTx struct {
	mu      sync.Mutex
	engine  *MemoryEngine
	adds    []Quad
	removes []Quad
	ctxDels []string
	done    bool
}

func newMemoryTx(e *MemoryEngine) *memoryTx {
	return &memoryTx{engine: e}
}

func (t *memoryTx) AddStatement(s Term, p string, o Term, g string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.adds = append(t.adds, Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (t *memoryTx) RemoveStatement(s Term, p string, o Term, g string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.removes = append(t.removes, Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (t *memoryTx) RemoveContext(g string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.ctxDels = append(t.ctxDels, g)
	return nil
}

// ContainsStatement, ListStatements and ExecuteQuery inside a transaction
// read through to the parent engine overlaid with this transaction's own
// pending writes, so a caller that adds then immediately queries sees its
// own uncommitted change (needed by storeResources' merge loop).
func (t *memoryTx) ContainsStatement(s Term, p string, o Term, g string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	target := Quad{Subject: s, Predicate: p, Object: o, Graph: g}
	for _, q := range t.removes {
		if quadKey(q) == quadKey(target) {
			return false, nil
		}
	}
	for _, cg := range t.ctxDels {
		if cg == g {
			return false, nil
		}
	}
	for _, q := range t.adds {
		if quadKey(q) == quadKey(target) {
			return true, nil
		}
	}
	return t.engine.ContainsStatement(context.Background(), s, p, o, g)
}

func (t *memoryTx) ListStatements(pattern Pattern) (StatementIterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	base, err := t.engine.ListStatements(context.Background(), pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]Quad{}
	for base.Next() {
		q := base.Quad()
		seen[quadKey(q)] = q
	}
	base.Close()
	for _, cg := range t.ctxDels {
		for k, q := range seen {
			if q.Graph == cg {
				delete(seen, k)
			}
		}
	}
	for _, q := range t.removes {
		delete(seen, quadKey(q))
	}
	for _, q := range t.adds {
		if matches(q, pattern) {
			seen[quadKey(q)] = q
		}
	}
	out := make([]Quad, 0, len(seen))
	for _, q := range seen {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return quadKey(out[i]) < quadKey(out[j]) })
	return &sliceIterator{quads: out, idx: -1}, nil
}

func (t *memoryTx) ExecuteQuery(query string, lang QueryLanguage) (QueryResult, error) {
	return runQuery(t.ListStatements, query)
}

func (t *memoryTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	for _, g := range t.ctxDels {
		t.engine.removeContextLocked(g)
	}
	for _, q := range t.removes {
		t.engine.removeLocked(q)
	}
	for _, q := range t.adds {
		t.engine.addLocked(q)
	}
	t.done = true
	return nil
}

func (t *memoryTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.adds, t.removes, t.ctxDels = nil, nil, nil
	t.done = true
	return nil
}
