package transport

import (
	"context"

	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/nepomuk-go/datacore/pkg/syncresource"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// Client is the mutation API surface (SPEC_FULL.md §6), satisfied both
// by the in-process adapter below and, over the wire, by an HTTP
// client speaking to Server's routes — the Design Notes' "expose the
// API as an interface with in-process and RPC adapters" requirement.
type Client interface {
	AddProperty(ctx context.Context, resources []string, property string, values []any, app string) error
	SetProperty(ctx context.Context, resources []string, property string, values []any, app string) error
	RemoveProperty(ctx context.Context, resources []string, property string, values []any, app string) error
	RemoveResources(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error
	CreateResource(ctx context.Context, types []string, label, description, app string) (string, error)
	RemoveDataByApplication(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error
	RemoveAllDataByApplication(ctx context.Context, flags datamanagement.RemoveFlag, app string) error
	StoreResources(ctx context.Context, graph datamanagement.RawGraph, mode identifier.Mode, flags datamanagement.StoreFlag, additionalMetadata map[string]string, app string) (datamanagement.StoreResult, error)
	MergeResources(ctx context.Context, a, b, app string) error
	DescribeResources(ctx context.Context, resources []string, flags datamanagement.DescribeFlag) (*syncresource.Graph, error)
}

// localClient calls a datamanagement.Model directly, with no network
// hop — for embedding the core in a single binary alongside whatever
// calls it.
type localClient struct {
	model *datamanagement.Model
}

// NewLocalClient wraps model as a Client, skipping the transport
// package's HTTP layer entirely.
func NewLocalClient(model *datamanagement.Model) Client {
	return &localClient{model: model}
}

func (c *localClient) AddProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.model.AddProperty(ctx, resources, property, values, app)
}

func (c *localClient) SetProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.model.SetProperty(ctx, resources, property, values, app)
}

func (c *localClient) RemoveProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.model.RemoveProperty(ctx, resources, property, values, app)
}

func (c *localClient) RemoveResources(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error {
	return c.model.RemoveResources(ctx, resources, flags, app)
}

func (c *localClient) CreateResource(ctx context.Context, types []string, label, description, app string) (string, error) {
	return c.model.CreateResource(ctx, types, label, description, app)
}

func (c *localClient) RemoveDataByApplication(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error {
	return c.model.RemoveDataByApplication(ctx, resources, flags, app)
}

func (c *localClient) RemoveAllDataByApplication(ctx context.Context, flags datamanagement.RemoveFlag, app string) error {
	return c.model.RemoveAllDataByApplication(ctx, flags, app)
}

func (c *localClient) StoreResources(ctx context.Context, graph datamanagement.RawGraph, mode identifier.Mode, flags datamanagement.StoreFlag, additionalMetadata map[string]string, app string) (datamanagement.StoreResult, error) {
	return c.model.StoreResources(ctx, graph, mode, flags, additionalMetadata, app)
}

func (c *localClient) MergeResources(ctx context.Context, a, b, app string) error {
	return c.model.MergeResources(ctx, a, b, app)
}

func (c *localClient) DescribeResources(ctx context.Context, resources []string, flags datamanagement.DescribeFlag) (*syncresource.Graph, error) {
	return c.model.DescribeResources(ctx, resources, flags)
}

func (c *localClient) Watch(ctx context.Context, filters watcher.Filters, sink func(watcher.Batch)) watcher.Handle {
	return c.model.Watch(ctx, filters, sink)
}
