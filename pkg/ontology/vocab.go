package ontology

const (
	rdfType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	naoLastModified = "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#lastModified"
	xsdDateTime    = "http://www.w3.org/2001/XMLSchema#dateTime"

	// metadataGraph holds one nao:lastModified triple per imported
	// ontology file, keyed by that file's tracking URI (trackingKey), so a restart can
	// tell an unchanged ontology file from one that needs re-parsing
	// without re-reading and re-diffing its contents.
	metadataGraph = "urn:nepomuk:ontology-loader"
)
