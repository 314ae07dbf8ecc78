package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/syncresource"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// RemoteClient is the RPC adapter side of Client: it speaks the same
// JSON request-reply protocol Server.buildRouter exposes, over an
// ordinary *http.Client, so a caller outside this process's address
// space can drive the same mutation API the in-process Client does.
type RemoteClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRemoteClient builds a RemoteClient against baseURL (e.g.
// "http://localhost:7431"). token, if non-empty, is sent as a bearer
// token on every request.
func NewRemoteClient(baseURL, token string, httpClient *http.Client) *RemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteClient{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, http: httpClient}
}

func (c *RemoteClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("transport: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return remoteError(resp.StatusCode, errResp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// remoteError reconstructs a *nepomukerr.Error from the wire shape so
// callers that switch on err's Kind behave the same whether they used
// the in-process Client or RemoteClient.
func remoteError(status int, resp errorResponse) error {
	if resp.Kind == "" {
		return fmt.Errorf("transport: request failed with status %d: %s", status, resp.Message)
	}
	return nepomukerr.New(kindFromString(resp.Kind), "%s", resp.Message)
}

func kindFromString(s string) nepomukerr.Kind {
	for k := nepomukerr.InvalidArgument; k <= nepomukerr.Cancelled; k++ {
		if k.String() == s {
			return k
		}
	}
	return nepomukerr.StoreError
}

func (c *RemoteClient) AddProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.post(ctx, "/v1/addProperty", propertyRequest{Resources: resources, Property: property, Values: values, App: app}, nil)
}

func (c *RemoteClient) SetProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.post(ctx, "/v1/setProperty", propertyRequest{Resources: resources, Property: property, Values: values, App: app}, nil)
}

func (c *RemoteClient) RemoveProperty(ctx context.Context, resources []string, property string, values []any, app string) error {
	return c.post(ctx, "/v1/removeProperty", propertyRequest{Resources: resources, Property: property, Values: values, App: app}, nil)
}

func (c *RemoteClient) RemoveResources(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error {
	req := removeResourcesRequest{Resources: resources, RemoveSubResources: flags&datamanagement.RemoveSubResources != 0, App: app}
	return c.post(ctx, "/v1/removeResources", req, nil)
}

func (c *RemoteClient) CreateResource(ctx context.Context, types []string, label, description, app string) (string, error) {
	var out struct {
		URI string `json:"uri"`
	}
	req := createResourceRequest{Types: types, Label: label, Description: description, App: app}
	if err := c.post(ctx, "/v1/createResource", req, &out); err != nil {
		return "", err
	}
	return out.URI, nil
}

func (c *RemoteClient) RemoveDataByApplication(ctx context.Context, resources []string, flags datamanagement.RemoveFlag, app string) error {
	req := removeDataByApplicationRequest{Resources: resources, RemoveSubResources: flags&datamanagement.RemoveSubResources != 0, App: app}
	return c.post(ctx, "/v1/removeDataByApplication", req, nil)
}

func (c *RemoteClient) RemoveAllDataByApplication(ctx context.Context, flags datamanagement.RemoveFlag, app string) error {
	req := removeAllDataByApplicationRequest{RemoveSubResources: flags&datamanagement.RemoveSubResources != 0, App: app}
	return c.post(ctx, "/v1/removeAllDataByApplication", req, nil)
}

func (c *RemoteClient) StoreResources(ctx context.Context, graph datamanagement.RawGraph, mode identifier.Mode, flags datamanagement.StoreFlag, additionalMetadata map[string]string, app string) (datamanagement.StoreResult, error) {
	wire := make([]wireResource, 0, len(graph))
	for _, res := range graph {
		wire = append(wire, wireResource{URI: res.URI, Properties: res.Properties})
	}
	req := storeResourcesRequest{
		Graph:               wire,
		IdentifyExisting:    mode == identifier.IdentifyNew,
		OverwriteProperties: flags&datamanagement.OverwriteProperties != 0,
		LazyCardinalities:   flags&datamanagement.LazyCardinalities != 0,
		AdditionalMetadata:  additionalMetadata,
		App:                 app,
	}
	var out struct {
		URIs map[string]string `json:"uris"`
	}
	if err := c.post(ctx, "/v1/storeResources", req, &out); err != nil {
		return datamanagement.StoreResult{}, err
	}
	return datamanagement.StoreResult{URIs: out.URIs}, nil
}

func (c *RemoteClient) MergeResources(ctx context.Context, a, b, app string) error {
	return c.post(ctx, "/v1/mergeResources", mergeResourcesRequest{A: a, B: b, App: app}, nil)
}

func (c *RemoteClient) DescribeResources(ctx context.Context, resources []string, flags datamanagement.DescribeFlag) (*syncresource.Graph, error) {
	req := describeResourcesRequest{
		Resources:               resources,
		IncludeRelatedResources: flags&datamanagement.IncludeRelatedResources != 0,
		ExcludeDiscardableData:  flags&datamanagement.ExcludeDiscardableData != 0,
	}
	var out struct {
		Resources []wireSyncResource `json:"resources"`
	}
	if err := c.post(ctx, "/v1/describeResources", req, &out); err != nil {
		return nil, err
	}
	graph := syncresource.NewGraph()
	for _, wr := range out.Resources {
		res := syncresource.New(wr.URI)
		for prop, terms := range wr.Properties {
			for _, t := range terms {
				res.Add(prop, t)
			}
		}
		graph.Put(res)
	}
	return graph, nil
}

// Watch opens the streaming /v1/watch endpoint and invokes sink once
// per newline-delimited batch until ctx is cancelled or the server
// closes the connection; the returned function cancels the underlying
// request, mirroring watcher.Handle.Close's semantics over the wire.
func (c *RemoteClient) Watch(ctx context.Context, filters watcher.Filters, sink func(watcher.Batch)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	data, err := json.Marshal(watchRequest{Resources: filters.Resources, Properties: filters.Properties, Types: filters.Types})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: marshaling watch request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/watch", bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: building watch request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: watch request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("transport: watch request failed with status %d", resp.StatusCode)
	}

	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var batch watcher.Batch
			if err := json.Unmarshal(scanner.Bytes(), &batch); err != nil {
				continue
			}
			sink(batch)
		}
	}()

	return cancel, nil
}
