package ontology

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nepomuk-go/datacore/pkg/store"
)

// parsedQuad is one line of an N-Quads/.trig-subset ontology file: a quad
// whose graph term may be absent (defaults to the file's synthetic graph,
// assigned by the caller).
type parsedQuad struct {
	Subject   store.Term
	Predicate string
	Object    store.Term
	Graph     string // empty if the line carried no graph term
}

// parseNQuads reads r line by line, accepting the N-Quads grammar plus the
// single .trig extension shared-desktop-ontologies files actually use: a
// trailing fourth term naming the graph. Comments ('#...') and blank lines
// are skipped. This is not a general Turtle/TriG parser — no prefixes, no
// blank-node collapsing beyond the literal "_:label" spelling — just the
// flat subject-predicate-object[-graph] triples the ontology files ship.
func parseNQuads(r io.Reader) ([]parsedQuad, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var quads []parsedQuad
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := parseNQuadLine(line)
		if err != nil {
			return nil, fmt.Errorf("ontology: line %d: %w", lineNo, err)
		}
		quads = append(quads, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ontology: reading: %w", err)
	}
	return quads, nil
}

func parseNQuadLine(line string) (parsedQuad, error) {
	l := newNQLexer(line)

	subj, err := l.nextTerm()
	if err != nil {
		return parsedQuad{}, fmt.Errorf("subject: %w", err)
	}
	pred, err := l.nextTerm()
	if err != nil {
		return parsedQuad{}, fmt.Errorf("predicate: %w", err)
	}
	if !pred.IsURI() {
		return parsedQuad{}, fmt.Errorf("predicate must be a URI, got %s", pred.String())
	}
	obj, err := l.nextTerm()
	if err != nil {
		return parsedQuad{}, fmt.Errorf("object: %w", err)
	}

	q := parsedQuad{Subject: subj, Predicate: pred.Value, Object: obj}

	// An optional fourth term names the graph; its absence (straight to
	// the closing '.') means "use the file's default graph".
	l.skipSpace()
	if l.peek() != '.' && l.pos < len(l.src) {
		graph, err := l.nextTerm()
		if err != nil {
			return parsedQuad{}, fmt.Errorf("graph: %w", err)
		}
		if !graph.IsURI() {
			return parsedQuad{}, fmt.Errorf("graph term must be a URI, got %s", graph.String())
		}
		q.Graph = graph.Value
	}

	l.skipSpace()
	if l.peek() != '.' {
		return parsedQuad{}, fmt.Errorf("expected terminating '.'")
	}
	return q, nil
}

// nqLexer walks one N-Quads line term by term; unlike the SPARQL subset
// lexer in package store this never needs to look ahead past the current
// term, so it stays a thin cursor instead of a token stream.
type nqLexer struct {
	src []rune
	pos int
}

func newNQLexer(line string) *nqLexer { return &nqLexer{src: []rune(line)} }

func (l *nqLexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *nqLexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
}

func (l *nqLexer) nextTerm() (store.Term, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return store.Term{}, fmt.Errorf("unexpected end of line")
	}

	switch l.src[l.pos] {
	case '<':
		return l.readURI()
	case '_':
		return l.readBlankNode()
	case '"':
		return l.readLiteral()
	default:
		return store.Term{}, fmt.Errorf("unexpected character %q", l.src[l.pos])
	}
}

func (l *nqLexer) readURI() (store.Term, error) {
	l.pos++ // consume '<'
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '>' {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return store.Term{}, fmt.Errorf("unterminated URI")
	}
	uri := string(l.src[start:l.pos])
	l.pos++ // consume '>'
	return store.URI(uri), nil
}

func (l *nqLexer) readBlankNode() (store.Term, error) {
	start := l.pos
	for l.pos < len(l.src) && !isTermBoundary(l.src[l.pos]) {
		l.pos++
	}
	return store.URI(string(l.src[start:l.pos])), nil
}

func (l *nqLexer) readLiteral() (store.Term, error) {
	l.pos++ // consume opening quote
	var b strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != '"' {
		if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			b.WriteRune(unescapeChar(l.src[l.pos]))
			l.pos++
			continue
		}
		b.WriteRune(l.src[l.pos])
		l.pos++
	}
	if l.pos >= len(l.src) {
		return store.Term{}, fmt.Errorf("unterminated literal")
	}
	l.pos++ // consume closing quote

	switch {
	case l.pos < len(l.src) && l.src[l.pos] == '^' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '^':
		l.pos += 2
		dt, err := l.nextTerm()
		if err != nil {
			return store.Term{}, fmt.Errorf("datatype: %w", err)
		}
		return store.Literal(b.String(), dt.Value), nil
	case l.pos < len(l.src) && l.src[l.pos] == '@':
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && !isTermBoundary(l.src[l.pos]) {
			l.pos++
		}
		lit := store.Literal(b.String(), "")
		lit.Lang = string(l.src[start:l.pos])
		return lit, nil
	default:
		return store.Literal(b.String(), ""), nil
	}
}

func isTermBoundary(r rune) bool {
	return r == ' ' || r == '\t' || r == '.'
}

func unescapeChar(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}
