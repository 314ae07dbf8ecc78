// Package uri mints the two URI families this core owns: resource URIs
// and provenance-graph URIs, both 128-bit UUIDs per SPEC_FULL.md §6.
package uri

import "github.com/google/uuid"

const (
	resourcePrefix = "nepomuk:/res/"
	graphPrefix    = "nepomuk:/ctx/"
)

// NewResource mints a fresh, never-reused resource URI.
func NewResource() string {
	return resourcePrefix + uuid.NewString()
}

// NewGraph mints a fresh provenance graph URI.
func NewGraph() string {
	return graphPrefix + uuid.NewString()
}

// IsResource reports whether uri is a nepomuk:/res/ resource URI minted by
// this core (as opposed to a blank node, file:// URL, or other external
// identifier that storeResources also accepts).
func IsResource(s string) bool {
	return len(s) > len(resourcePrefix) && s[:len(resourcePrefix)] == resourcePrefix
}

// IsGraph reports whether uri is a nepomuk:/ctx/ provenance graph URI.
func IsGraph(s string) bool {
	return len(s) > len(graphPrefix) && s[:len(graphPrefix)] == graphPrefix
}

// IsBlankNode reports whether s is a sync-resource blank-node label
// ("_:label"), never persisted as-is - storeResources replaces it with a
// minted or identified resource URI before any statement is written.
func IsBlankNode(s string) bool {
	return len(s) >= 2 && s[:2] == "_:"
}
