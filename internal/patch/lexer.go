package patch

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIllegal
	tokIdent
	tokDot
	tokSemicolon
	// tokArgs carries the raw text between a pair of parentheses
	tokArgs
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of statement"
	case tokIdent:
		return "name"
	case tokDot:
		return "'.'"
	case tokSemicolon:
		return "';'"
	case tokArgs:
		return "argument list"
	}
	return "illegal input"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokIdent || t.kind == tokIllegal {
		return fmt.Sprintf("%s %q", t.kind, t.text)
	}
	return t.kind.String()
}

// lexer splits a statement into names, dots, semicolons, and whole
// argument lists. An argument list is scanned to its matching parenthesis
// so nested JSON and quoted text never reach the parser as tokens.
type lexer struct {
	src string
	pos int
}

func (l *lexer) next() token {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}
	}

	start := l.pos
	c := l.src[start]
	switch {
	case c == '.':
		l.pos++
		return token{kind: tokDot, text: ".", pos: start}
	case c == ';':
		l.pos++
		return token{kind: tokSemicolon, text: ";", pos: start}
	case c == '(':
		end := FindClosing(l.src, start)
		if end < 0 {
			l.pos = len(l.src)
			return token{kind: tokIllegal, text: l.src[start:], pos: start}
		}
		l.pos = end + 1
		return token{kind: tokArgs, text: l.src[start+1 : end], pos: start}
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}
	}

	l.pos++
	return token{kind: tokIllegal, text: string(c), pos: start}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}
