// Package lisp is the surface syntax: an s-expression reader that
// translates source text into effect expressions ready for lowering.
package lisp

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError is a reader diagnostic with a source position.
type ParseError struct {
	Line uint32
	Col  uint32
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lisp: %d:%d: %s", e.Line, e.Col, e.Msg)
}

func errAt(line, col uint32, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

// node kinds.
const (
	nList byte = iota
	nSymbol
	nInt
	nBool
)

// node is one parsed s-expression.
type node struct {
	kind byte
	sym  string
	num  int64
	b    bool
	list []*node
	line uint32
	col  uint32
}

// isSym reports whether the node is the given bare symbol.
func (n *node) isSym(s string) bool { return n.kind == nSymbol && n.sym == s }

// token is one lexeme with its position.
type token struct {
	text string
	line uint32
	col  uint32
}

// Parse reads a single s-expression from source. Trailing content is
// an error.
func Parse(source string) (*node, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errAt(1, 1, "empty input")
	}
	n, rest, err := parseNode(tokens)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errAt(rest[0].line, rest[0].col, "unexpected %q after expression", rest[0].text)
	}
	return n, nil
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	line, col := uint32(1), uint32(1)
	i := 0
	for i < len(source) {
		ch := source[i]
		switch {
		case ch == '\n':
			line++
			col = 1
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			col++
			i++
		case ch == ';':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case ch == '(' || ch == ')' || ch == '\'':
			tokens = append(tokens, token{text: string(ch), line: line, col: col})
			col++
			i++
		default:
			start := i
			startCol := col
			for i < len(source) && !strings.ContainsRune(" \t\r\n();'", rune(source[i])) {
				i++
				col++
			}
			tokens = append(tokens, token{text: source[start:i], line: line, col: startCol})
		}
	}
	return tokens, nil
}

func parseNode(tokens []token) (*node, []token, error) {
	tok := tokens[0]
	switch tok.text {
	case "(":
		rest := tokens[1:]
		out := &node{kind: nList, line: tok.line, col: tok.col}
		for {
			if len(rest) == 0 {
				return nil, nil, errAt(tok.line, tok.col, "unclosed parenthesis")
			}
			if rest[0].text == ")" {
				return out, rest[1:], nil
			}
			child, next, err := parseNode(rest)
			if err != nil {
				return nil, nil, err
			}
			out.list = append(out.list, child)
			rest = next
		}
	case ")":
		return nil, nil, errAt(tok.line, tok.col, "unexpected closing parenthesis")
	case "'":
		if len(tokens) < 2 {
			return nil, nil, errAt(tok.line, tok.col, "quote at end of input")
		}
		quoted, rest, err := parseNode(tokens[1:])
		if err != nil {
			return nil, nil, err
		}
		q := &node{kind: nList, line: tok.line, col: tok.col}
		q.list = append(q.list, &node{kind: nSymbol, sym: "quote", line: tok.line, col: tok.col}, quoted)
		return q, rest, nil
	default:
		return parseAtom(tok), tokens[1:], nil
	}
}

func parseAtom(tok token) *node {
	switch tok.text {
	case "#t", "true":
		return &node{kind: nBool, b: true, line: tok.line, col: tok.col}
	case "#f", "false":
		return &node{kind: nBool, b: false, line: tok.line, col: tok.col}
	}
	if i, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
		return &node{kind: nInt, num: i, line: tok.line, col: tok.col}
	}
	return &node{kind: nSymbol, sym: tok.text, line: tok.line, col: tok.col}
}
