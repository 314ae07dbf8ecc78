package datamanagement

const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	naoCreated        = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#created"
	naoLastModified   = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#lastModified"
	naoPrefLabel      = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#prefLabel"
	naoDescription    = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#description"
	naoHasSubResource = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#hasSubResource"
	naoIdentifier     = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#identifier"

	nieURL        = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#url"
	nieDataObject = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#DataObject"
)

// internalProperties can never be set directly through addProperty —
// they are maintained exclusively by the data management model itself.
var internalProperties = map[string]struct{}{
	rdfType:         {},
	naoCreated:      {},
	naoLastModified: {},
}

func isInternalProperty(p string) bool {
	_, ok := internalProperties[p]
	return ok
}
