package transport

import (
	"net/http"

	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/identifier"
	"github.com/nepomuk-go/datacore/pkg/nepomukerr"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/syncresource"
	"github.com/nepomuk-go/datacore/pkg/watcher"
)

// errKind reports the nepomukerr.Kind tag carried by err, if any.
func errKind(err error) (string, bool) {
	nerr, ok := asNepomukErr(err)
	if !ok {
		return "", false
	}
	return nerr.Kind.String(), true
}

func asNepomukErr(err error) (*nepomukerr.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*nepomukerr.Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// statusForKind maps a nepomukerr.Kind to the HTTP status the row's
// error surfaces as.
func statusForKind(err error) int {
	e, ok := asNepomukErr(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case nepomukerr.InvalidArgument, nepomukerr.UnknownProperty, nepomukerr.UnknownClass:
		return http.StatusBadRequest
	case nepomukerr.CardinalityExceeded, nepomukerr.UniquenessViolation, nepomukerr.AmbiguousIdentification:
		return http.StatusConflict
	case nepomukerr.PermissionDenied:
		return http.StatusForbidden
	case nepomukerr.Cancelled:
		return 499 // client closed request, matching the teacher's nginx-style non-standard code
	case nepomukerr.StoreError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// addProperty / setProperty / removeProperty share one wire shape.
// =============================================================================

type propertyRequest struct {
	Resources []string `json:"resources"`
	Property  string   `json:"property"`
	Values    []any    `json:"values"`
	App       string   `json:"app"`
}

func (s *Server) handleAddProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	app := agentFromContext(r, req.App)
	if err := s.model.AddProperty(r.Context(), req.Resources, req.Property, req.Values, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "addProperty failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	app := agentFromContext(r, req.App)
	if err := s.model.SetProperty(r.Context(), req.Resources, req.Property, req.Values, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "setProperty failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemoveProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	app := agentFromContext(r, req.App)
	if err := s.model.RemoveProperty(r.Context(), req.Resources, req.Property, req.Values, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "removeProperty failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// removeResources
// =============================================================================

type removeResourcesRequest struct {
	Resources          []string `json:"resources"`
	RemoveSubResources bool     `json:"remove_sub_resources"`
	App                string   `json:"app"`
}

func (s *Server) handleRemoveResources(w http.ResponseWriter, r *http.Request) {
	var req removeResourcesRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	var flags datamanagement.RemoveFlag
	if req.RemoveSubResources {
		flags |= datamanagement.RemoveSubResources
	}
	app := agentFromContext(r, req.App)
	if err := s.model.RemoveResources(r.Context(), req.Resources, flags, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "removeResources failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// createResource
// =============================================================================

type createResourceRequest struct {
	Types       []string `json:"types"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	App         string   `json:"app"`
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	app := agentFromContext(r, req.App)
	uri, err := s.model.CreateResource(r.Context(), req.Types, req.Label, req.Description, app)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "createResource failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"uri": uri})
}

// =============================================================================
// removeDataByApplication / removeAllDataByApplication
// =============================================================================

type removeDataByApplicationRequest struct {
	Resources          []string `json:"resources"`
	RemoveSubResources bool     `json:"remove_sub_resources"`
	App                string   `json:"app"`
}

func (s *Server) handleRemoveDataByApplication(w http.ResponseWriter, r *http.Request) {
	var req removeDataByApplicationRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	var flags datamanagement.RemoveFlag
	if req.RemoveSubResources {
		flags |= datamanagement.RemoveSubResources
	}
	app := agentFromContext(r, req.App)
	if err := s.model.RemoveDataByApplication(r.Context(), req.Resources, flags, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "removeDataByApplication failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type removeAllDataByApplicationRequest struct {
	RemoveSubResources bool   `json:"remove_sub_resources"`
	App                string `json:"app"`
}

func (s *Server) handleRemoveAllDataByApplication(w http.ResponseWriter, r *http.Request) {
	var req removeAllDataByApplicationRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	var flags datamanagement.RemoveFlag
	if req.RemoveSubResources {
		flags |= datamanagement.RemoveSubResources
	}
	app := agentFromContext(r, req.App)
	if err := s.model.RemoveAllDataByApplication(r.Context(), flags, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "removeAllDataByApplication failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// storeResources
// =============================================================================

type wireResource struct {
	URI        string           `json:"uri"`
	Properties map[string][]any `json:"properties"`
}

type storeResourcesRequest struct {
	Graph               []wireResource    `json:"graph"`
	IdentifyExisting    bool              `json:"identify_existing"`
	OverwriteProperties bool              `json:"overwrite_properties"`
	LazyCardinalities   bool              `json:"lazy_cardinalities"`
	AdditionalMetadata  map[string]string `json:"additional_metadata"`
	App                 string            `json:"app"`
}

func (s *Server) handleStoreResources(w http.ResponseWriter, r *http.Request) {
	var req storeResourcesRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}

	graph := make(datamanagement.RawGraph, 0, len(req.Graph))
	for _, res := range req.Graph {
		graph = append(graph, datamanagement.RawResource{URI: res.URI, Properties: res.Properties})
	}

	mode := identifier.IdentifyNew
	if !req.IdentifyExisting {
		mode = identifier.IdentifyNone
	}
	var flags datamanagement.StoreFlag
	if req.OverwriteProperties {
		flags |= datamanagement.OverwriteProperties
	}
	if req.LazyCardinalities {
		flags |= datamanagement.LazyCardinalities
	}

	app := agentFromContext(r, req.App)
	result, err := s.model.StoreResources(r.Context(), graph, mode, flags, req.AdditionalMetadata, app)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "storeResources failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"uris": result.URIs})
}

// =============================================================================
// mergeResources
// =============================================================================

type mergeResourcesRequest struct {
	A   string `json:"a"`
	B   string `json:"b"`
	App string `json:"app"`
}

func (s *Server) handleMergeResources(w http.ResponseWriter, r *http.Request) {
	var req mergeResourcesRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	app := agentFromContext(r, req.App)
	if err := s.model.MergeResources(r.Context(), req.A, req.B, app); err != nil {
		s.writeError(w, http.StatusInternalServerError, "mergeResources failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// describeResources
// =============================================================================

type describeResourcesRequest struct {
	Resources               []string `json:"resources"`
	IncludeRelatedResources bool     `json:"include_related_resources"`
	ExcludeDiscardableData  bool     `json:"exclude_discardable_data"`
}

func (s *Server) handleDescribeResources(w http.ResponseWriter, r *http.Request) {
	var req describeResourcesRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	var flags datamanagement.DescribeFlag
	if req.IncludeRelatedResources {
		flags |= datamanagement.IncludeRelatedResources
	}
	if req.ExcludeDiscardableData {
		flags |= datamanagement.ExcludeDiscardableData
	}
	graph, err := s.model.DescribeResources(r.Context(), req.Resources, flags)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "describeResources failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"resources": wireGraph(graph)})
}

func wireGraph(graph *syncresource.Graph) []wireSyncResource {
	out := make([]wireSyncResource, 0, graph.Len())
	for _, res := range graph.Resources() {
		out = append(out, wireSyncResource{URI: res.URI(), Properties: res.Properties()})
	}
	return out
}

type wireSyncResource struct {
	URI        string                   `json:"uri"`
	Properties map[string][]store.Term `json:"properties"`
}

// =============================================================================
// watch — SSE-style JSON-lines stream of matching changes until the
// caller disconnects, per SPEC_FULL.md's "transport disconnection
// closes the handle".
// =============================================================================

type watchRequest struct {
	Resources  []string `json:"resources"`
	Properties []string `json:"properties"`
	Types      []string `json:"types"`
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusNotImplemented, "streaming not supported by this transport", nil)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := jsonEncoder(w)
	filters := watcher.Filters{Resources: req.Resources, Properties: req.Properties, Types: req.Types}
	handle := s.model.Watch(r.Context(), filters, func(batch watcher.Batch) {
		_ = enc(batch)
		flusher.Flush()
	})
	defer handle.Close()

	<-r.Context().Done()
}
