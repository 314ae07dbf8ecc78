package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nepomuk-go/datacore/pkg/auth"
	"github.com/nepomuk-go/datacore/pkg/cpt"
	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTestOntology registers just enough of the nao vocabulary in eng for
// the CPT to resolve nao:identifier as a settable property; without this
// any AddProperty/StoreResources call against it fails as an abstract
// property, since a freshly-rebuilt tree knows no ontology at all.
func seedTestOntology(t *testing.T, eng store.Engine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, eng.AddStatement(ctx, store.URI(cpt.NAOIdentifier), cpt.RDFType, store.URI(cpt.RDFProperty), "urn:ontology"))
	require.NoError(t, eng.AddStatement(ctx, store.URI(cpt.NAOIdentifier), cpt.RDFSRange, store.URI(cpt.XSDString), "urn:ontology"))
}

func newTestModel(t *testing.T) *datamanagement.Model {
	t.Helper()
	eng := store.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	seedTestOntology(t, eng)
	m := datamanagement.New(eng, datamanagement.DefaultConfig())
	require.NoError(t, m.Rebuild(context.Background()))
	return m
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	model := newTestModel(t)
	srv, err := New(model, nil, DefaultConfig())
	require.NoError(t, err)
	return srv
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateResourceAndAddProperty(t *testing.T) {
	srv := newTestServer(t)
	router := srv.buildRouter()

	createBody := `{"types":["http://www.semanticdesktop.org/ontologies/2007/03/22/nao#Tag"],"label":"x","description":"","app":"test-app"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/createResource", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		URI string `json:"uri"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.URI)
}

func TestAddPropertyRejectsEmptyApp(t *testing.T) {
	srv := newTestServer(t)
	router := srv.buildRouter()

	body := `{"resources":["nepomuk:/res/1"],"property":"` + cpt.NAOIdentifier + `","values":["x"],"app":""}`
	req := httptest.NewRequest(http.MethodPost, "/v1/addProperty", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "InvalidArgument", resp.Kind)
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	model := newTestModel(t)
	authenticator, err := auth.New(auth.Config{JWTSecret: []byte("01234567890123456789012345678901")})
	require.NoError(t, err)

	srv, err := New(model, authenticator, DefaultConfig())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/createResource", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartStop(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
