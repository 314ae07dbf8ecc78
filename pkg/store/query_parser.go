package store

import (
	"fmt"
	"strconv"
	"strings"
)

// wellKnownPrefixes resolves the small set of prefixed names the core's own
// queries use (mirrors the Vocab.* constants in package cpt without
// importing it, to keep store dependency-free of the ontology layer).
var wellKnownPrefixes = map[string]string{
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
	"nao":  "http://www.semanticdesktop.org/ontologies/2007/08/15/nao#",
	"nrl":  "http://www.semanticdesktop.org/ontologies/2007/08/15/nrl#",
	"nie":  "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#",
	"nco":  "http://www.semanticdesktop.org/ontologies/2007/03/22/nco#",
	"nfo":  "http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#",
}

func resolvePrefixed(name string) string {
	if name == "a" {
		return wellKnownPrefixes["rdf"] + "type"
	}
	i := strings.IndexByte(name, ':')
	if i < 0 {
		return name
	}
	prefix, local := name[:i], name[i+1:]
	if ns, ok := wellKnownPrefixes[prefix]; ok {
		return ns + local
	}
	return name
}

var keywords = map[string]bool{
	"SELECT": true, "ASK": true, "WHERE": true, "DISTINCT": true,
	"FILTER": true, "GRAPH": true, "OPTIONAL": true, "UNION": true,
	"NOT": true, "EXISTS": true, "REGEX": true, "ORDER": true, "BY": true,
	"ASC": true, "DESC": true, "LIMIT": true, "INSERT": true,
}

func kw(t token) string {
	if t.kind != tokIdent {
		return ""
	}
	u := strings.ToUpper(t.text)
	if keywords[u] {
		return u
	}
	return ""
}

type parser struct {
	toks []token
	pos  int
}

func parseQuery(src string) (*parsedQuery, error) {
	p := &parser{toks: tokenize(src)}
	return p.parseQuery()
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) parseQuery() (*parsedQuery, error) {
	q := &parsedQuery{}
	switch kw(p.cur()) {
	case "ASK":
		p.advance()
		q.Form = formAsk
	case "SELECT":
		p.advance()
		q.Form = formSelect
		if kw(p.cur()) == "DISTINCT" {
			q.Distinct = true
			p.advance()
		}
		for p.cur().kind == tokVar {
			q.Vars = append(q.Vars, p.advance().text)
		}
	case "INSERT":
		p.advance()
		q.Form = formInsertWhere
		ins, err := p.parseGroupRaw()
		if err != nil {
			return nil, err
		}
		q.Insert = ins.Triples
	default:
		return nil, fmt.Errorf("sparql: expected ASK, SELECT or INSERT, got %q", p.cur().text)
	}

	if kw(p.cur()) == "WHERE" {
		p.advance()
	}
	g, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	q.Where = g

	if kw(p.cur()) == "ORDER" {
		p.advance()
		if kw(p.cur()) == "BY" {
			p.advance()
		}
		for {
			desc := false
			if kw(p.cur()) == "ASC" {
				p.advance()
			} else if kw(p.cur()) == "DESC" {
				desc = true
				p.advance()
			}
			if p.cur().kind != tokVar {
				break
			}
			q.OrderBy = append(q.OrderBy, orderTerm{Var: p.advance().text, Desc: desc})
			if p.cur().kind == tokPunct && p.cur().text == "," {
				p.advance()
				continue
			}
			break
		}
	}
	if kw(p.cur()) == "LIMIT" {
		p.advance()
		n, _ := strconv.Atoi(p.advance().text)
		q.Limit = n
	}
	return q, nil
}

// parseGroupRaw parses a brace-delimited block of plain triples only (used
// for INSERT { ... }).
func (p *parser) parseGroupRaw() (*groupPattern, error) {
	if !(p.cur().kind == tokPunct && p.cur().text == "{") {
		return nil, fmt.Errorf("sparql: expected '{'")
	}
	p.advance()
	g := &groupPattern{}
	for !(p.cur().kind == tokPunct && p.cur().text == "}") && p.cur().kind != tokEOF {
		tp, err := p.parseTriple()
		if err != nil {
			return nil, err
		}
		g.Triples = append(g.Triples, tp)
		if p.cur().kind == tokPunct && p.cur().text == "." {
			p.advance()
		}
	}
	p.advance() // consume '}'
	return g, nil
}

func (p *parser) parseGroup() (*groupPattern, error) {
	if !(p.cur().kind == tokPunct && p.cur().text == "{") {
		return nil, fmt.Errorf("sparql: expected '{', got %q", p.cur().text)
	}
	p.advance()
	g := &groupPattern{}

	for !(p.cur().kind == tokPunct && p.cur().text == "}") && p.cur().kind != tokEOF {
		switch kw(p.cur()) {
		case "GRAPH":
			p.advance()
			var gv, gu string
			if p.cur().kind == tokVar {
				gv = p.advance().text
			} else if p.cur().kind == tokURI || p.cur().kind == tokIdent {
				gu = resolvePrefixed(p.advance().text)
			}
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			inner.GraphVar = gv
			inner.GraphURI = gu
			// A bare GRAPH block is modelled as a single-branch union so
			// the executor's existing union-flattening handles it too.
			g.Unions = append(g.Unions, inner)

		case "OPTIONAL":
			p.advance()
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Optionals = append(g.Optionals, inner)

		case "FILTER":
			p.advance()
			if kw(p.cur()) == "NOT" {
				p.advance()
				if kw(p.cur()) == "EXISTS" {
					p.advance()
				}
				inner, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				g.NotExists = append(g.NotExists, inner)
				continue
			}
			e, err := p.parseFilterExpr()
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, e)

		case "UNION":
			p.advance()
			alt, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Unions = append(g.Unions, alt)

		default:
			if p.cur().kind == tokPunct && p.cur().text == "{" {
				sub, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				g.Unions = append(g.Unions, sub)
				continue
			}
			tp, err := p.parseTriple()
			if err != nil {
				return nil, err
			}
			g.Triples = append(g.Triples, tp)
		}
		if p.cur().kind == tokPunct && p.cur().text == "." {
			p.advance()
		}
	}
	p.advance() // consume '}'
	return g, nil
}

func (p *parser) parseTerm() (patternTerm, error) {
	t := p.cur()
	switch t.kind {
	case tokVar:
		p.advance()
		return patternTerm{IsVar: true, Var: t.text}, nil
	case tokURI:
		p.advance()
		return patternTerm{Literal: URI(t.text)}, nil
	case tokString:
		p.advance()
		lit := t.text
		dt := ""
		if p.cur().kind == tokOp && p.cur().text == "^" {
			// not produced by our lexer (no ^^ handling) - kept defensive
			p.advance()
		}
		return patternTerm{Literal: Literal(lit, dt)}, nil
	case tokIdent:
		p.advance()
		return patternTerm{Literal: URI(resolvePrefixed(t.text))}, nil
	default:
		return patternTerm{}, fmt.Errorf("sparql: unexpected token %q in triple", t.text)
	}
}

func (p *parser) parseTriple() (triplePattern, error) {
	s, err := p.parseTerm()
	if err != nil {
		return triplePattern{}, err
	}
	pr, err := p.parseTerm()
	if err != nil {
		return triplePattern{}, err
	}
	o, err := p.parseTerm()
	if err != nil {
		return triplePattern{}, err
	}
	return triplePattern{S: s, P: pr, O: o}, nil
}

// parseFilterExpr parses "(" expr ")" for FILTER, with a small grammar:
// orExpr := andExpr ( '||' andExpr )*
// andExpr := cmpExpr ( '&&' cmpExpr )*
// cmpExpr := primary ( ('='|'!='|'<'|'<='|'>'|'>=') primary )?
// primary := REGEX(var, "pattern") | var | literal | '(' orExpr ')'
func (p *parser) parseFilterExpr() (expr, error) {
	if !(p.cur().kind == tokPunct && p.cur().text == "(") {
		return nil, fmt.Errorf("sparql: expected '(' after FILTER")
	}
	p.advance()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokPunct && p.cur().text == ")" {
		p.advance()
	}
	return e, nil
}

func (p *parser) parseOr() (expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && p.cur().text == "||" {
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{Op: "||", Lhs: lhs, Rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (expr, error) {
	lhs, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && p.cur().text == "&&" {
		p.advance()
		rhs, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{Op: "&&", Lhs: lhs, Rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseCmp() (expr, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokOp {
		switch p.cur().text {
		case "=", "!=", "<", "<=", ">", ">=":
			op := p.advance().text
			rhs, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return binaryExpr{Op: op, Lhs: lhs, Rhs: rhs}, nil
		}
	}
	return lhs, nil
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.cur()
	if t.kind == tokIdent && strings.EqualFold(t.text, "REGEX") {
		p.advance()
		if p.cur().kind == tokPunct && p.cur().text == "(" {
			p.advance()
		}
		subj, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if p.cur().kind == tokPunct && p.cur().text == "," {
			p.advance()
		}
		pat := p.advance().text
		if p.cur().kind == tokPunct && p.cur().text == "," {
			// optional flags argument, ignored
			p.advance()
			p.advance()
		}
		if p.cur().kind == tokPunct && p.cur().text == ")" {
			p.advance()
		}
		return regexExpr{Subject: subj, Pattern: pat}, nil
	}
	if t.kind == tokOp && t.text == "!" {
		p.advance()
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return notExpr{Inner: inner}, nil
	}
	if t.kind == tokPunct && t.text == "(" {
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur().kind == tokPunct && p.cur().text == ")" {
			p.advance()
		}
		return e, nil
	}
	switch t.kind {
	case tokVar:
		p.advance()
		return varExpr{Name: t.text}, nil
	case tokURI:
		p.advance()
		return litExpr{Value: URI(t.text)}, nil
	case tokString:
		p.advance()
		return litExpr{Value: Literal(t.text, "")}, nil
	case tokIdent:
		p.advance()
		return litExpr{Value: URI(resolvePrefixed(t.text))}, nil
	}
	return nil, fmt.Errorf("sparql: unexpected token %q in filter expression", t.text)
}
