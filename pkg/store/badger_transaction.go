package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"
)

// BeginTransaction opens a buffered transaction over the engine. Writes are
// staged in memory and applied as one badger.Txn on Commit, matching the
// teacher's buffer-then-apply Transaction (pkg/storage/badger_transaction.go)
// so a failed commit never leaves partial index entries on disk.
func (b *BadgerEngine) BeginTransaction(_ context.Context) (Transaction, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return &badgerTx{engine: b}, nil
}

type badgerTx struct {
	engine  *BadgerEngine
	adds    []Quad
	removes []Quad
	ctxDels []string
	done    bool
}

func (t *badgerTx) AddStatement(s Term, p string, o Term, g string) error {
	if t.done {
		return ErrTxClosed
	}
	t.adds = append(t.adds, Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (t *badgerTx) RemoveStatement(s Term, p string, o Term, g string) error {
	if t.done {
		return ErrTxClosed
	}
	t.removes = append(t.removes, Quad{Subject: s, Predicate: p, Object: o, Graph: g})
	return nil
}

func (t *badgerTx) RemoveContext(g string) error {
	if t.done {
		return ErrTxClosed
	}
	t.ctxDels = append(t.ctxDels, g)
	return nil
}

func (t *badgerTx) ContainsStatement(s Term, p string, o Term, g string) (bool, error) {
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

// ListStatements overlays this transaction's pending writes on top of a
// fresh read from the underlying engine, same read-your-own-writes
// contract as memoryTx.
func (t *badgerTx) ListStatements(pattern Pattern) (StatementIterator, error) {
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
	return &sliceIterator{quads: out, idx: -1}, nil
}

func (t *badgerTx) ExecuteQuery(query string, lang QueryLanguage) (QueryResult, error) {
	return runQuery(t.ListStatements, query)
}

// Commit applies ctxDels, then removes, then adds as a single badger
// transaction, retrying once on a conflict the way the teacher's
// badgerTransaction.Commit does for its own property writes.
func (t *badgerTx) Commit() error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	if len(t.adds) == 0 && len(t.removes) == 0 && len(t.ctxDels) == 0 {
		return nil
	}

	apply := func() error {
		return t.engine.db.Update(func(txn *badger.Txn) error {
			for _, g := range t.ctxDels {
				if err := deleteContextTxn(txn, g); err != nil {
					return err
				}
			}
			for _, q := range t.removes {
				if err := deleteQuadTxn(txn, q); err != nil {
					return err
				}
			}
			for _, q := range t.adds {
				if err := insertQuadTxn(txn, q); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := apply()
	if err == badger.ErrConflict {
		err = apply()
	}
	return err
}

func (t *badgerTx) Rollback() error {
	if t.done {
		return ErrTxClosed
	}
	t.adds, t.removes, t.ctxDels = nil, nil, nil
	t.done = true
	return nil
}

func insertQuadTxn(txn *badger.Txn, q Quad) error {
	spog, posg, ospg, gspo := allIndexKeys(q)
	if _, err := txn.Get(spog); err == nil {
		return nil // already present
	} else if err != badger.ErrKeyNotFound {
		return err
	}
	val, err := encodeQuad(q)
	if err != nil {
		return err
	}
	if err := txn.Set(spog, val); err != nil {
		return err
	}
	if err := txn.Set(posg, spog); err != nil {
		return err
	}
	if err := txn.Set(ospg, spog); err != nil {
		return err
	}
	return txn.Set(gspo, spog)
}

func deleteQuadTxn(txn *badger.Txn, q Quad) error {
	spog, posg, ospg, gspo := allIndexKeys(q)
	for _, k := range [][]byte{spog, posg, ospg, gspo} {
		if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

// deleteContextTxn scans the GSPO index for graph g, decodes each quad via
// its canonical entry, and deletes all four keys for it.
func deleteContextTxn(txn *badger.Txn, g string) error {
	prefix := append([]byte{prefixGSPO}, []byte(g)...)
	prefix = append(prefix, 0)

	var toDelete []Quad
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(spogKeyBytes []byte) error {
			canon, err := txn.Get(spogKeyBytes)
			if err != nil {
				return err
			}
			return canon.Value(func(v []byte) error {
				q, err := decodeQuad(v)
				if err != nil {
					return err
				}
				toDelete = append(toDelete, q)
				return nil
			})
		})
		if err != nil {
			it.Close()
			return err
		}
	}
	it.Close()

	for _, q := range toDelete {
		if err := deleteQuadTxn(txn, q); err != nil {
			return err
		}
	}
	return nil
}
