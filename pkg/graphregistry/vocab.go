package graphregistry

// Vocabulary URIs the registry reads and writes. Real Nepomuk/NRL terms
// (NRL::GraphMetadata, NRL::coreGraphMetadataFor, NRL::InstanceBase) are
// used rather than invented predicates, so a real ontology import lines up
// with what this package writes.
const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	naoNS         = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#"
	naoAgent      = naoNS + "Agent"
	naoIdentifier = naoNS + "identifier"
	naoCreated    = naoNS + "created"
	naoMaintBy    = naoNS + "maintainedBy"

	nrlNS               = "http://www.semanticdesktop.org/ontologies/2007/08/15/nrl#"
	nrlGraphMetadata     = nrlNS + "GraphMetadata"
	nrlCoreGraphMetaFor  = nrlNS + "coreGraphMetadataFor"
	nrlInstanceBase      = nrlNS + "InstanceBase"
	nrlDiscardableBase   = nrlNS + "DiscardableInstanceBase"

	xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)
