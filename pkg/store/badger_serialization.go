package store

import "encoding/json"

// encodeQuad/decodeQuad are the values stored under the canonical SPOG key.
// The three secondary-index keys (POSG/OSPG/GSPO) store the SPOG key bytes
// as their value and are never unmarshalled directly, mirroring the
// teacher's index-entries-point-at-primary-key layout in
// pkg/storage/badger_serialization.go.
func encodeQuad(q Quad) ([]byte, error) {
	return json.Marshal(q)
}

func decodeQuad(b []byte) (Quad, error) {
	var q Quad
	err := json.Unmarshal(b, &q)
	return q, err
}

// allIndexKeys returns the four keys (one canonical, three secondary) a
// single quad occupies.
func allIndexKeys(q Quad) (spog, posg, ospg, gspo []byte) {
	return spogKey(q.Subject, q.Predicate, q.Object, q.Graph),
		posgKey(q.Subject, q.Predicate, q.Object, q.Graph),
		ospgKey(q.Subject, q.Predicate, q.Object, q.Graph),
		gspoKey(q.Subject, q.Predicate, q.Object, q.Graph)
}
