package datamanagement

import (
	"context"

	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/syncresource"
)

// DescribeFlag modifies describeResources' read behaviour.
type DescribeFlag int

const (
	DescribeNone DescribeFlag = 0
	// IncludeRelatedResources also returns resources directly
	// referenced (as an object) by one of the requested resources.
	IncludeRelatedResources DescribeFlag = 1 << iota
	// ExcludeDiscardableData omits quads living in a discardable
	// (cache-only) provenance graph.
	ExcludeDiscardableData
)

// DescribeResources is the read path: it returns a sync-resource graph
// containing the requested resources' current statements.
func (m *Model) DescribeResources(ctx context.Context, resources []string, flags DescribeFlag) (*syncresource.Graph, error) {
	if err := requireResources(resources); err != nil {
		return nil, err
	}

	out := syncresource.NewGraph()
	err := m.withReadLock(ctx, func(tx store.Transaction) error {
		visited := map[string]struct{}{}
		related := map[string]struct{}{}

		for _, r := range resources {
			if err := checkCancelled(ctx); err != nil {
				return err
			}
			if _, ok := visited[r]; ok {
				continue
			}
			visited[r] = struct{}{}

			res, refs, err := m.describeOne(tx, r, flags)
			if err != nil {
				return err
			}
			if res.IsValid() {
				out.Put(res)
			}
			for _, ref := range refs {
				related[ref] = struct{}{}
			}
		}

		if flags&IncludeRelatedResources != 0 {
			for ref := range related {
				if _, ok := visited[ref]; ok {
					continue
				}
				visited[ref] = struct{}{}
				res, _, err := m.describeOne(tx, ref, flags)
				if err != nil {
					return err
				}
				if res.IsValid() {
					out.Put(res)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// describeOne reads every statement with subject uri into a
// syncresource.Resource, returning the object URIs it references (for
// IncludeRelatedResources) alongside it.
func (m *Model) describeOne(tx store.Transaction, uri string, flags DescribeFlag) (*syncresource.Resource, []string, error) {
	subj := store.URI(uri)
	it, err := tx.ListStatements(store.Pattern{Subject: &subj})
	if err != nil {
		return nil, nil, nepomukerr.Store(err)
	}
	defer it.Close()

	res := syncresource.New(uri)
	var refs []string
	for it.Next() {
		q := it.Quad()
		if flags&ExcludeDiscardableData != 0 && m.registry.IsDiscardable(q.Graph) {
			continue
		}
		res.Add(q.Predicate, q.Object)
		if q.Object.IsURI() {
			refs = append(refs, q.Object.Value)
		}
	}
	if err := it.Err(); err != nil {
		return nil, nil, nepomukerr.Store(err)
	}
	return res, refs, nil
}
