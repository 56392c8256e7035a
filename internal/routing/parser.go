package routing

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Directive is one parsed configuration directive. Block directives carry
// their nested directives in Children.
type Directive struct {
	Name     string
	Args     []string
	Children []Directive
}

type token struct {
	kind tokenKind
	text string
	line int
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenOpenBrace
	tokenCloseBrace
	tokenSemicolon
)

// ParseDirectives parses nginx-style configuration text into a directive tree.
func ParseDirectives(content []byte) ([]Directive, error) {
	tokens, err := tokenize(string(content))
	if err != nil {
		return nil, err
	}

	directives, rest, err := parseBlock(tokens, false)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected %q at line %d", rest[0].text, rest[0].line)
	}

	return directives, nil
}

func tokenize(content string) ([]token, error) {
	var tokens []token
	line := 1
	i := 0

	for i < len(content) {
		c := content[i]

		switch {
		case c == '\n':
			line++
			i++
		case unicode.IsSpace(rune(c)):
			i++
		case c == '#':
			for i < len(content) && content[i] != '\n' {
				i++
			}
		case c == '{':
			tokens = append(tokens, token{tokenOpenBrace, "{", line})
			i++
		case c == '}':
			tokens = append(tokens, token{tokenCloseBrace, "}", line})
			i++
		case c == ';':
			tokens = append(tokens, token{tokenSemicolon, ";", line})
			i++
		case c == '"' || c == '\'':
			quote := c
			start := i + 1
			i++
			for i < len(content) && content[i] != quote {
				if content[i] == '\n' {
					line++
				}
				i++
			}
			if i >= len(content) {
				return nil, fmt.Errorf("unterminated string at line %d", line)
			}
			tokens = append(tokens, token{tokenWord, content[start:i], line})
			i++
		default:
			start := i
			for i < len(content) && !isWordBreak(content[i]) {
				i++
			}
			tokens = append(tokens, token{tokenWord, content[start:i], line})
		}
	}

	return tokens, nil
}

func isWordBreak(c byte) bool {
	return c == '{' || c == '}' || c == ';' || c == '#' || unicode.IsSpace(rune(c))
}

func parseBlock(tokens []token, nested bool) ([]Directive, []token, error) {
	var directives []Directive

	for len(tokens) > 0 {
		tok := tokens[0]

		if tok.kind == tokenCloseBrace {
			if !nested {
				return nil, nil, fmt.Errorf("unexpected } at line %d", tok.line)
			}
			return directives, tokens[1:], nil
		}

		if tok.kind != tokenWord {
			return nil, nil, fmt.Errorf("unexpected %q at line %d", tok.text, tok.line)
		}

		directive := Directive{Name: tok.text}
		tokens = tokens[1:]

		// Collect arguments until the directive terminates
		for len(tokens) > 0 && tokens[0].kind == tokenWord {
			directive.Args = append(directive.Args, tokens[0].text)
			tokens = tokens[1:]
		}

		if len(tokens) == 0 {
			return nil, nil, fmt.Errorf("unterminated directive %q at line %d", directive.Name, tok.line)
		}

		switch tokens[0].kind {
		case tokenSemicolon:
			tokens = tokens[1:]
		case tokenOpenBrace:
			children, rest, err := parseBlock(tokens[1:], true)
			if err != nil {
				return nil, nil, err
			}
			directive.Children = children
			tokens = rest
		default:
			return nil, nil, fmt.Errorf("unexpected %q after directive %q at line %d", tokens[0].text, directive.Name, tokens[0].line)
		}

		directives = append(directives, directive)
	}

	if nested {
		return nil, nil, fmt.Errorf("missing closing }")
	}

	return directives, tokens, nil
}

// parsePort parses a decimal listen port.
func parsePort(s string) (int, error) {
	// listen may carry extra parameters like "80 default_server"
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return port, nil
}
