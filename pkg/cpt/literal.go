package cpt

import (
	"fmt"
	"strings"
	"time"

	"github.com/nepomuk-go/datacore/pkg/convert"
	"github.com/nepomuk-go/datacore/pkg/store"
)

// ErrAbstractProperty is returned when a value is set for a property the
// ontology declares no range for - such a property exists only to be
// subclassed, not to hold values directly.
var ErrAbstractProperty = fmt.Errorf("cpt: property has no declared range")

// VariantToNode coerces a single Go value into the store term a property's
// declared range requires, applying the same special cases as the
// original variantToNode: fraction-encoded floats, bare publication years,
// and rdfs:Literal's anything-goes plain-literal rule.
func (t *Tree) VariantToNode(value any, property string) (store.Term, error) {
	nodes, err := t.VariantListToNodeSet([]any{value}, property)
	if err != nil {
		return store.Term{}, err
	}
	if len(nodes) == 0 {
		return store.Term{}, ErrAbstractProperty
	}
	return nodes[0], nil
}

// VariantListToNodeSet is the list form, deduplicating terms the way the
// original's QSet<Soprano::Node> result does.
func (t *Tree) VariantListToNodeSet(values []any, property string) ([]store.Term, error) {
	t.mu.RLock()
	cop := t.find(property)
	t.mu.RUnlock()
	if cop == nil {
		return nil, fmt.Errorf("cpt: cannot set values for abstract property %q: %w", property, ErrAbstractProperty)
	}

	rang := cop.rang
	hasRdfsLiteralRange := cop.hasRdfsLiteralRange

	if rang == "" {
		return nil, fmt.Errorf("cpt: cannot set values for abstract property %q: %w", property, ErrAbstractProperty)
	}

	if hasRdfsLiteralRange {
		seen := map[string]store.Term{}
		for _, v := range values {
			lit := store.Literal(fmt.Sprint(v), "")
			seen[lit.Value] = lit
		}
		return dedupTerms(seen), nil
	}

	// No literal datatype: the property ranges over resources.
	if !isXSDNamespace(rang) {
		seen := map[string]store.Term{}
		for _, v := range values {
			switch val := v.(type) {
			case string:
				if val == "" {
					return nil, fmt.Errorf("cpt: encountered an empty string where a resource URI was expected")
				}
				seen[val] = store.URI(val)
			case fmt.Stringer:
				seen[val.String()] = store.URI(val.String())
			default:
				return nil, fmt.Errorf("cpt: encountered %v where a resource URI was expected", v)
			}
		}
		return dedupTerms(seen), nil
	}

	seen := map[string]store.Term{}
	for _, v := range values {
		if rang == XSDFloat || rang == XSDDouble {
			if s, ok := v.(string); ok {
				if f, ok := parseFraction(s); ok {
					lit := store.Literal(fmt.Sprintf("%g", f), rang)
					seen[lit.Value] = lit
					continue
				}
			}
		}
		if rang == XSDDateTime {
			if year, ok := asYear(v); ok {
				ts := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
				lit := store.Literal(ts.Format(time.RFC3339), rang)
				seen[lit.Value] = lit
				continue
			}
		}

		lit, err := coerceLiteral(v, rang)
		if err != nil {
			return nil, fmt.Errorf("cpt: failed to convert %v to literal of type %q: %w", v, rang, err)
		}
		seen[lit.Value] = lit
	}
	return dedupTerms(seen), nil
}

func dedupTerms(seen map[string]store.Term) []store.Term {
	out := make([]store.Term, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	return out
}

// parseFraction handles the Exiv2 "x/y" rational-number encoding some
// image metadata embeds for floating point values.
func parseFraction(s string) (float64, bool) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return 0, false
	}
	var x, y int
	if _, err := fmt.Sscanf(s, "%d/%d", &x, &y); err != nil || y == 0 {
		return 0, false
	}
	return float64(x) / float64(y), true
}

// asYear recognises a bare publication year (ID3 tags sometimes contain
// only a year), the same "very dumb heuristic" as the original.
func asYear(v any) (int, bool) {
	n, ok := convert.ToInt64(v)
	if !ok || n <= 0 || n > 9999 {
		return 0, false
	}
	return int(n), true
}

func coerceLiteral(v any, datatype string) (store.Term, error) {
	switch datatype {
	case XSDFloat, XSDDouble:
		f, ok := convert.ToFloat64(v)
		if !ok {
			return store.Term{}, fmt.Errorf("not a number")
		}
		return store.Literal(fmt.Sprintf("%g", f), datatype), nil
	default:
		if n, ok := convert.ToInt64(v); ok {
			if isIntegerRange(datatype) {
				return store.Literal(fmt.Sprintf("%d", n), datatype), nil
			}
		}
		return store.Literal(fmt.Sprint(v), datatype), nil
	}
}

func isIntegerRange(datatype string) bool {
	switch datatype {
	case "http://www.w3.org/2001/XMLSchema#int",
		"http://www.w3.org/2001/XMLSchema#integer",
		"http://www.w3.org/2001/XMLSchema#long",
		"http://www.w3.org/2001/XMLSchema#unsignedInt":
		return true
	}
	return false
}
