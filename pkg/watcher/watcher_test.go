package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectOne(t *testing.T, timeout time.Duration) (chan Batch, func(Batch)) {
	t.Helper()
	ch := make(chan Batch, 8)
	return ch, func(b Batch) { ch <- b }
}

func waitBatch(t *testing.T, ch chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a notification")
		return nil
	}
}

func assertNoBatch(t *testing.T, ch chan Batch) {
	t.Helper()
	select {
	case b := <-ch:
		t.Fatalf("expected no notification, got %v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterReceivesMatchingChange(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{Resources: []string{"nepomuk:/res/1"}}, sink)
	defer h.Close()

	w.Notify(Batch{{Subject: "nepomuk:/res/1", Predicate: "p", Object: "v", Kind: Added}})

	b := waitBatch(t, ch)
	require.Len(t, b, 1)
	assert.Equal(t, "nepomuk:/res/1", b[0].Subject)
}

func TestRegisterFiltersOutNonMatchingResource(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{Resources: []string{"nepomuk:/res/1"}}, sink)
	defer h.Close()

	w.Notify(Batch{{Subject: "nepomuk:/res/other", Predicate: "p", Object: "v", Kind: Added}})
	assertNoBatch(t, ch)
}

func TestHandleCloseStopsDelivery(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{}, sink)
	h.Close()
	h.Close() // safe to call twice

	w.Notify(Batch{{Subject: "nepomuk:/res/1", Predicate: "p", Object: "v", Kind: Added}})
	assertNoBatch(t, ch)
}

func TestPropertyFilter(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{Properties: []string{"p1"}}, sink)
	defer h.Close()

	w.Notify(Batch{
		{Subject: "s", Predicate: "p1", Object: "v1", Kind: Added},
		{Subject: "s", Predicate: "p2", Object: "v2", Kind: Added},
	})

	b := waitBatch(t, ch)
	require.Len(t, b, 1)
	assert.Equal(t, "p1", b[0].Predicate)
}

func TestTypeFilterMatchesSubclass(t *testing.T) {
	eng := seedTreeWithSubclass(t)
	w := New(eng)
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{Types: []string{superClass}}, sink)
	defer h.Close()

	w.Notify(Batch{{Subject: "s", Predicate: "p", Object: "v", Kind: Added, Types: []string{subClass}}})

	b := waitBatch(t, ch)
	require.Len(t, b, 1)
}

func TestAddRemoveResourceFilter(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)
	ch, sink := collectOne(t, time.Second)

	h := w.Register(context.Background(), Filters{Resources: []string{"r1"}}, sink)
	defer h.Close()

	w.AddResource(h, "r2")
	w.Notify(Batch{{Subject: "r2", Predicate: "p", Object: "v", Kind: Added}})
	b := waitBatch(t, ch)
	require.Len(t, b, 1)

	w.RemoveResource(h, "r2")
	w.Notify(Batch{{Subject: "r2", Predicate: "p", Object: "v", Kind: Added}})
	assertNoBatch(t, ch)
}

func TestConcurrentRegisterAndNotify(t *testing.T) {
	w := New(cpt.New())
	t.Cleanup(w.Close)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := w.Register(context.Background(), Filters{}, func(Batch) {})
			defer h.Close()
			w.Notify(Batch{{Subject: "s", Predicate: "p", Object: "v", Kind: Added}})
		}()
	}
	wg.Wait()
}

const (
	superClass = "http://example.org/onto#Super"
	subClass   = "http://example.org/onto#Sub"
)

func seedTreeWithSubclass(t *testing.T) *cpt.Tree {
	t.Helper()
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	const g = "nepomuk:/ctx/onto"
	require.NoError(t, eng.AddStatement(ctx, store.URI(superClass), cpt.RDFType, store.URI(cpt.RDFSClass), g))
	require.NoError(t, eng.AddStatement(ctx, store.URI(subClass), cpt.RDFType, store.URI(cpt.RDFSClass), g))
	require.NoError(t, eng.AddStatement(ctx, store.URI(subClass), cpt.RDFSSubClassOf, store.URI(superClass), g))

	tree := cpt.New()
	require.NoError(t, tree.Rebuild(ctx, eng))
	return tree
}
