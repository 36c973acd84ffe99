// Package query implements the restricted query language: tokenizing,
// metric/filter expansion, parsing and execution against a frame.
package query

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenString
	tokenOperator
	tokenPunct // ( ) , *
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	// start/end are byte offsets into the source, so substitution can splice
	// the untouched text between tokens back together.
	start int
	end   int
}

// isKeyword does a case-insensitive keyword check on an identifier token.
func (t token) isKeyword(word string) bool {
	return t.kind == tokenIdent && strings.EqualFold(t.text, word)
}

// tokenize splits query or expression text into tokens. Identifiers may be
// dot-qualified ("o.order_amount" is one token); string literals use single
// quotes with '' escaping.
func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isIdentStart(c):
			start := i
			for i < n && (isIdentPart(src[i]) || src[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: src[start:i], start: start, end: i})

		case c >= '0' && c <= '9':
			start := i
			for i < n && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: src[start:i], start: start, end: i})

		case c == '\'':
			start := i
			i++
			for {
				if i >= n {
					return nil, fmt.Errorf("unterminated string literal at offset %d", start)
				}
				if src[i] == '\'' {
					if i+1 < n && src[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, token{kind: tokenString, text: src[start:i], start: start, end: i})

		case c == '(' || c == ')' || c == ',' || c == '*':
			tokens = append(tokens, token{kind: tokenPunct, text: string(c), start: i, end: i + 1})
			i++

		case strings.ContainsRune("=<>!+-/%", rune(c)):
			start := i
			i++
			if i < n && (src[i] == '=' || (c == '<' && src[i] == '>')) {
				i++
			}
			tokens = append(tokens, token{kind: tokenOperator, text: src[start:i], start: start, end: i})

		case c == ';':
			// Statement terminator; tolerated at the end, rejected mid-query
			// by the parser (a second statement never parses as SELECT).
			i++

		default:
			if c < 128 && !unicode.IsPrint(rune(c)) {
				return nil, fmt.Errorf("invalid byte 0x%02x at offset %d", c, i)
			}
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, start: n, end: n})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// stringLiteralValue strips the quotes and unescapes '' in a tokenString.
func stringLiteralValue(text string) string {
	inner := text[1 : len(text)-1]
	return strings.ReplaceAll(inner, "''", "'")
}
