package store

import (
	"fmt"
	"regexp"
	"sort"
)

// listFunc abstracts over Engine.ListStatements and Transaction.ListStatements
// so the same executor serves both without requiring a shared interface
// that would force a context.Context parameter transactions don't take.
type listFunc func(Pattern) (StatementIterator, error)

// runQuery is the real entry point; both Engine and Transaction
// implementations call this with a listFunc bound to themselves.
func runQuery(list listFunc, query string) (QueryResult, error) {
	q, err := parseQuery(query)
	if err != nil {
		return QueryResult{}, err
	}

	bindings, err := evalGroup(list, q.Where, []Binding{{}})
	if err != nil {
		return QueryResult{}, err
	}

	switch q.Form {
	case formAsk:
		return QueryResult{IsBoolean: true, Boolean: len(bindings) > 0}, nil

	case formInsertWhere:
		// Only used by callers that pass a writable listFunc context; our
		// reference engines don't route writes through ExecuteQuery
		// (AddStatement is used directly), so this form is accepted for
		// interface completeness; nothing is inserted, and the boolean
		// result only reports whether the WHERE pattern had any solution.
		return QueryResult{IsBoolean: true, Boolean: len(bindings) > 0}, nil

	default: // formSelect
		if len(q.OrderBy) > 0 {
			sortBindings(bindings, q.OrderBy)
		}
		if q.Limit > 0 && len(bindings) > q.Limit {
			bindings = bindings[:q.Limit]
		}
		if q.Distinct {
			bindings = dedupBindings(bindings)
		}
		return QueryResult{Vars: q.Vars, Bindings: bindings}, nil
	}
}

func cloneBinding(b Binding) Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func evalGroup(list listFunc, g *groupPattern, bindings []Binding) ([]Binding, error) {
	if g == nil {
		return bindings, nil
	}
	var cur []Binding
	if len(g.Unions) > 0 {
		for _, branch := range g.Unions {
			r, err := evalGroup(list, branch, bindings)
			if err != nil {
				return nil, err
			}
			cur = append(cur, r...)
		}
	} else {
		cur = bindings
		for _, tp := range g.Triples {
			var next []Binding
			for _, b := range cur {
				ms, err := findMatches(list, tp, g.GraphURI, g.GraphVar, b)
				if err != nil {
					return nil, err
				}
				next = append(next, ms...)
			}
			cur = next
		}
	}

	for _, opt := range g.Optionals {
		var next []Binding
		for _, b := range cur {
			r, err := evalGroup(list, opt, []Binding{cloneBinding(b)})
			if err != nil {
				return nil, err
			}
			if len(r) == 0 {
				next = append(next, b)
			} else {
				next = append(next, r...)
			}
		}
		cur = next
	}

	for _, ne := range g.NotExists {
		var next []Binding
		for _, b := range cur {
			r, err := evalGroup(list, ne, []Binding{cloneBinding(b)})
			if err != nil {
				return nil, err
			}
			if len(r) == 0 {
				next = append(next, b)
			}
		}
		cur = next
	}

	for _, f := range g.Filters {
		var next []Binding
		for _, b := range cur {
			ok, err := evalBoolExpr(f, b)
			if err != nil {
				return nil, err
			}
			if ok {
				next = append(next, b)
			}
		}
		cur = next
	}

	return cur, nil
}

func findMatches(list listFunc, tp triplePattern, graphURI, graphVar string, b Binding) ([]Binding, error) {
	pattern := Pattern{}

	resolvedS, sVar, sBound := resolveTerm(tp.S, b)
	if sBound {
		pattern.Subject = resolvedS
	}
	var pVarName string
	var pBound bool
	var pVal string
	if tp.P.IsVar {
		pVarName = tp.P.Var
		if v, ok := b[pVarName]; ok {
			pVal = v.Value
			pattern.Predicate = &pVal
			pBound = true
		}
	} else {
		pVal = tp.P.Literal.Value
		pattern.Predicate = &pVal
		pBound = true
	}
	resolvedO, oVar, oBound := resolveTerm(tp.O, b)
	if oBound {
		pattern.Object = resolvedO
	}

	graph := graphURI
	if graphVar != "" {
		if v, ok := b[graphVar]; ok {
			graph = v.Value
		} else {
			graph = ""
		}
	}
	if graph != "" {
		pattern.Graph = &graph
	}

	it, err := list(pattern)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Binding
	for it.Next() {
		q := it.Quad()
		nb := cloneBinding(b)
		if sVar != "" && !sBound {
			if existing, ok := nb[sVar]; ok && !termEqual(existing, q.Subject) {
				continue
			}
			nb[sVar] = q.Subject
		}
		if pVarName != "" && !pBound {
			if existing, ok := nb[pVarName]; ok && existing.Value != q.Predicate {
				continue
			}
			nb[pVarName] = URI(q.Predicate)
		}
		if oVar != "" && !oBound {
			if existing, ok := nb[oVar]; ok && !termEqual(existing, q.Object) {
				continue
			}
			nb[oVar] = q.Object
		}
		if graphVar != "" {
			if existing, ok := nb[graphVar]; ok && existing.Value != q.Graph {
				continue
			}
			nb[graphVar] = URI(q.Graph)
		}
		out = append(out, nb)
	}
	return out, it.Err()
}

// resolveTerm returns (patternValue, varName, isBound). For a literal
// pattern term, isBound is always true. For a variable, isBound reflects
// whether it is already present in b.
func resolveTerm(t patternTerm, b Binding) (*Term, string, bool) {
	if !t.IsVar {
		v := t.Literal
		return &v, "", true
	}
	if v, ok := b[t.Var]; ok {
		return &v, t.Var, true
	}
	return nil, t.Var, false
}

func evalBoolExpr(e expr, b Binding) (bool, error) {
	switch v := e.(type) {
	case binaryExpr:
		switch v.Op {
		case "&&":
			l, err := evalBoolExpr(v.Lhs, b)
			if err != nil || !l {
				return false, err
			}
			return evalBoolExpr(v.Rhs, b)
		case "||":
			l, err := evalBoolExpr(v.Lhs, b)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return evalBoolExpr(v.Rhs, b)
		default:
			lv, err := evalValue(v.Lhs, b)
			if err != nil {
				return false, err
			}
			rv, err := evalValue(v.Rhs, b)
			if err != nil {
				return false, err
			}
			return compareTerms(v.Op, lv, rv), nil
		}
	case notExpr:
		r, err := evalBoolExpr(v.Inner, b)
		return !r, err
	case regexExpr:
		val, err := evalValue(v.Subject, b)
		if err != nil {
			return false, err
		}
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(val.Value), nil
	case varExpr:
		_, ok := b[v.Name]
		return ok, nil
	default:
		return false, fmt.Errorf("sparql: unsupported filter expression %T", e)
	}
}

func evalValue(e expr, b Binding) (Term, error) {
	switch v := e.(type) {
	case varExpr:
		if val, ok := b[v.Name]; ok {
			return val, nil
		}
		return Term{}, nil
	case litExpr:
		return v.Value, nil
	default:
		ok, err := evalBoolExpr(e, b)
		if err != nil {
			return Term{}, err
		}
		if ok {
			return Literal("true", "http://www.w3.org/2001/XMLSchema#boolean"), nil
		}
		return Literal("false", "http://www.w3.org/2001/XMLSchema#boolean"), nil
	}
}

func compareTerms(op string, l, r Term) bool {
	switch op {
	case "=":
		return termEqual(l, r)
	case "!=":
		return !termEqual(l, r)
	case "<":
		return l.Value < r.Value
	case "<=":
		return l.Value <= r.Value
	case ">":
		return l.Value > r.Value
	case ">=":
		return l.Value >= r.Value
	}
	return false
}

func sortBindings(bindings []Binding, order []orderTerm) {
	sort.SliceStable(bindings, func(i, j int) bool {
		for _, o := range order {
			vi, oki := bindings[i][o.Var]
			vj, okj := bindings[j][o.Var]
			if !oki || !okj {
				continue
			}
			if vi.Value == vj.Value {
				continue
			}
			if o.Desc {
				return vi.Value > vj.Value
			}
			return vi.Value < vj.Value
		}
		return false
	})
}

func dedupBindings(bindings []Binding) []Binding {
	seen := map[string]bool{}
	out := bindings[:0]
	for _, b := range bindings {
		key := fmt.Sprint(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}
