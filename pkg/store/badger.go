// Package store - BadgerEngine is the persistent quad engine, modelled on
// the teacher's BadgerEngine (pkg/storage/badger.go): the same
// multi-prefix secondary-index layout and BadgerOptions knob set, adapted
// from a nodes/edges property graph to (subject, predicate, object, graph)
// quads.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes. Four orderings of the same quad let every pattern shape
// (bound subject, bound predicate, bound object, bound graph, or none)
// resolve to a single prefix scan instead of a full table scan.
const (
	prefixSPOG = byte(0x01) // s|p|o|g  -> JSON(Quad)            (canonical)
	prefixPOSG = byte(0x02) // p|o|s|g  -> SPOG key               (index)
	prefixOSPG = byte(0x03) // o|s|p|g  -> SPOG key               (index)
	prefixGSPO = byte(0x04) // g|s|p|o  -> SPOG key               (index)
)

// BadgerOptions configures the persistent engine, mirroring the teacher's
// BadgerOptions (pkg/storage/badger.go) knob-for-knob.
type BadgerOptions struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	LowMemory  bool
	Logger     badger.Logger
}

// BadgerEngine is a persistent, ACID Engine backed by BadgerDB.
type BadgerEngine struct {
	db     *badger.DB
	closed bool
}

// NewBadgerEngine opens a persistent engine at dataDir with default tuning.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions opens a persistent engine with explicit
// tuning, for tests (InMemory) or constrained deployments (LowMemory).
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	bo := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	if opts.SyncWrites {
		bo = bo.WithSyncWrites(true)
	}
	if opts.Logger != nil {
		bo = bo.WithLogger(opts.Logger)
	} else {
		bo = bo.WithLogger(nil)
	}
	if opts.LowMemory {
		bo = bo.
			WithMemTableSize(16 << 20).
			WithValueLogFileSize(64 << 20).
			WithNumMemtables(2).
			WithNumLevelZeroTables(2).
			WithNumLevelZeroTablesStall(4).
			WithBlockCacheSize(32 << 20).
			WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger at %q: %w", opts.DataDir, err)
	}
	return &BadgerEngine{db: db}, nil
}

func (b *BadgerEngine) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *BadgerEngine) AddStatement(ctx context.Context, s Term, p string, o Term, g string) error {
	tx, err := b.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err := tx.AddStatement(s, p, o, g); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *BadgerEngine) RemoveStatement(ctx context.Context, s Term, p string, o Term, g string) error {
	tx, err := b.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err := tx.RemoveStatement(s, p, o, g); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *BadgerEngine) RemoveContext(ctx context.Context, g string) error {
	tx, err := b.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err := tx.RemoveContext(g); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *BadgerEngine) ContainsStatement(ctx context.Context, s Term, p string, o Term, g string) (bool, error) {
	if b.closed {
		return false, ErrClosed
	}
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(spogKey(s, p, o, g))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *BadgerEngine) ListStatements(ctx context.Context, pattern Pattern) (StatementIterator, error) {
	if b.closed {
		return nil, ErrClosed
	}
	var out []Quad
	err := b.db.View(func(txn *badger.Txn) error {
		return scanPattern(txn, pattern, func(q Quad) { out = append(out, q) })
	})
	if err != nil {
		return nil, err
	}
	return &sliceIterator{quads: out, idx: -1}, nil
}

func (b *BadgerEngine) ExecuteQuery(ctx context.Context, query string, lang QueryLanguage) (QueryResult, error) {
	return runQuery(func(p Pattern) (StatementIterator, error) {
		return b.ListStatements(ctx, p)
	}, query)
}

// scanPattern picks the index whose prefix fixes the most leading pattern
// fields and streams matching quads from it, filtering the remainder with
// matches(). This mirrors the teacher's per-query index selection in
// pkg/storage/badger.go (label index vs. outgoing/incoming index scans).
func scanPattern(txn *badger.Txn, pattern Pattern, emit func(Quad)) error {
	var prefix []byte
	switch {
	case pattern.Graph != nil:
		prefix = append([]byte{prefixGSPO}, []byte(*pattern.Graph)...)
		prefix = append(prefix, 0)
	case pattern.Subject != nil:
		prefix = append([]byte{prefixSPOG}, encodeTerm(*pattern.Subject)...)
		prefix = append(prefix, 0)
	case pattern.Predicate != nil:
		prefix = append([]byte{prefixPOSG}, []byte(*pattern.Predicate)...)
		prefix = append(prefix, 0)
	case pattern.Object != nil:
		prefix = append([]byte{prefixOSPG}, encodeTerm(*pattern.Object)...)
		prefix = append(prefix, 0)
	default:
		prefix = []byte{prefixSPOG}
	}

	isCanonical := len(prefix) > 0 && prefix[0] == prefixSPOG

	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var q Quad
		var err error
		if isCanonical {
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &q)
			})
		} else {
			err = item.Value(func(val []byte) error {
				canon, gErr := txn.Get(val)
				if gErr != nil {
					return gErr
				}
				return canon.Value(func(cv []byte) error {
					return json.Unmarshal(cv, &q)
				})
			})
		}
		if err != nil {
			return err
		}
		if matches(q, pattern) {
			emit(q)
		}
	}
	return nil
}

func encodeTerm(t Term) []byte {
	var buf bytes.Buffer
	if t.Kind == KindURI {
		buf.WriteByte('U')
	} else {
		buf.WriteByte('L')
		buf.WriteString(t.Datatype)
		buf.WriteByte(0)
	}
	buf.WriteString(t.Value)
	return buf.Bytes()
}

func spogKey(s Term, p string, o Term, g string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixSPOG)
	buf.Write(encodeTerm(s))
	buf.WriteByte(0)
	buf.WriteString(p)
	buf.WriteByte(0)
	buf.Write(encodeTerm(o))
	buf.WriteByte(0)
	buf.WriteString(g)
	return buf.Bytes()
}

func posgKey(s Term, p string, o Term, g string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixPOSG)
	buf.WriteString(p)
	buf.WriteByte(0)
	buf.Write(encodeTerm(o))
	buf.WriteByte(0)
	buf.Write(encodeTerm(s))
	buf.WriteByte(0)
	buf.WriteString(g)
	return buf.Bytes()
}

func ospgKey(s Term, p string, o Term, g string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixOSPG)
	buf.Write(encodeTerm(o))
	buf.WriteByte(0)
	buf.Write(encodeTerm(s))
	buf.WriteByte(0)
	buf.WriteString(p)
	buf.WriteByte(0)
	buf.WriteString(g)
	return buf.Bytes()
}

func gspoKey(s Term, p string, o Term, g string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixGSPO)
	buf.WriteString(g)
	buf.WriteByte(0)
	buf.Write(encodeTerm(s))
	buf.WriteByte(0)
	buf.WriteString(p)
	buf.WriteByte(0)
	buf.Write(encodeTerm(o))
	return buf.Bytes()
}
