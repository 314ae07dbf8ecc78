package transport

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalClientCreateResource(t *testing.T) {
	model := newTestModel(t)
	client := NewLocalClient(model)

	uri, err := client.CreateResource(context.Background(), nil, "label", "", "test-app")
	require.NoError(t, err)
	assert.NotEmpty(t, uri)
}

func TestRemoteClientRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.buildRouter())
	defer httpSrv.Close()

	remote := NewRemoteClient(httpSrv.URL, "", nil)

	uri, err := remote.CreateResource(context.Background(), nil, "label", "", "test-app")
	require.NoError(t, err)
	assert.NotEmpty(t, uri)

	err = remote.AddProperty(context.Background(), []string{uri}, cpt.NAOIdentifier, []any{"hello"}, "test-app")
	require.NoError(t, err)

	graph, err := remote.DescribeResources(context.Background(), []string{uri}, 0)
	require.NoError(t, err)
	res, ok := graph.Get(uri)
	require.True(t, ok)
	assert.NotEmpty(t, res.Property(cpt.NAOIdentifier))
}

func TestRemoteClientSurfacesNepomukErrKind(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.buildRouter())
	defer httpSrv.Close()

	remote := NewRemoteClient(httpSrv.URL, "", nil)

	err := remote.AddProperty(context.Background(), nil, cpt.NAOIdentifier, []any{"x"}, "test-app")
	require.Error(t, err)
	kind, ok := errKind(err)
	require.True(t, ok)
	assert.Equal(t, "InvalidArgument", kind)
}

func TestRemoteClientStoreResources(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.buildRouter())
	defer httpSrv.Close()

	remote := NewRemoteClient(httpSrv.URL, "", nil)

	graph := datamanagement.RawGraph{
		{URI: "_:a", Properties: map[string][]any{cpt.NAOIdentifier: {"blank-node-value"}}},
	}

	result, err := remote.StoreResources(context.Background(), graph, identifier.IdentifyNone, 0, nil, "test-app")
	require.NoError(t, err)
	assert.NotEmpty(t, result.URIs["_:a"])
}
