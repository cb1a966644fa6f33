package patch

import (
	"strconv"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

func closerOf(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return 0
}

// opensQuote reports whether the quote at s[i] starts a string. An
// apostrophe directly after a letter or digit belongs to the word, as in
// "it's".
func opensQuote(s string, i int) bool {
	return s[i] == '"' || i == 0 || !isIdentPart(s[i-1])
}

// FindClosing returns the index of the delimiter that closes the one at
// s[open], or -1 if there is none. Delimiters inside quoted strings are
// ignored and mismatched pairs such as "(]" count as unbalanced.
func FindClosing(s string, open int) int {
	if open < 0 || open >= len(s) || closerOf(s[open]) == 0 {
		return -1
	}

	var stack []byte
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			if opensQuote(s, i) {
				quote = c
			}
		case '(', '[', '{':
			stack = append(stack, closerOf(c))
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// SplitArgs splits an argument list on top-level commas. Commas nested in
// parentheses, brackets, braces, or quoted strings do not split. Quoting
// follows opensQuote. Parts are
// trimmed and keep their quotes. An empty list yields no parts.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}

	var (
		parts []string
		stack []byte
		quote byte
		qpos  int
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			if opensQuote(s, i) {
				quote, qpos = c, i
			}
		case '(', '[', '{':
			stack = append(stack, closerOf(c))
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return nil, errors.Newf(errors.ErrCodePatchSyntax, "unbalanced %q at offset %d in %q", c, i, s)
			}
			stack = stack[:len(stack)-1]
		case ',':
			if len(stack) == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}

	if quote != 0 {
		return nil, errors.Newf(errors.ErrCodePatchSyntax, "unterminated string starting at offset %d in %q", qpos, s)
	}
	if len(stack) > 0 {
		return nil, errors.Newf(errors.ErrCodePatchSyntax, "missing %q in %q", stack[len(stack)-1], s)
	}
	return append(parts, strings.TrimSpace(s[start:])), nil
}

// Unquote trims s and strips one pair of matching surrounding quotes.
// Double-quoted text is unescaped when it is a valid string literal;
// single-quoted text has \' and \\ unescaped. Anything else is returned
// trimmed.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return s
	}

	if q == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return singleQuoteEscapes.Replace(s[1 : len(s)-1])
}

var singleQuoteEscapes = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
