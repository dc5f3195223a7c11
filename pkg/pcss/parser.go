package pcss

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	data string
}

func tokenize(src string) ([]token, error) {
	l := css.NewLexer(parse.NewInputString(src))
	tokens := make([]token, 0, len(src)/4)

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if l.Err() != nil && l.Err() != io.EOF {
				return nil, eris.Wrap(l.Err(), "failed to tokenize stylesheet")
			}
			return tokens, nil
		}

		tokens = append(tokens, token{tt: tt, data: string(data)})
	}
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a stylesheet. Nested rules are allowed anywhere a declaration is.
func Parse(src string) (*Stylesheet, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	nodes, err := p.parseBlock(true)
	if err != nil {
		return nil, err
	}

	return &Stylesheet{Nodes: nodes}, nil
}

func (p *parser) eof() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) skipWhitespace() {
	for !p.eof() {
		switch p.peek().tt {
		case css.WhitespaceToken, css.CDOToken, css.CDCToken:
			p.pos++
		default:
			return
		}
	}
}

// readPrelude consumes tokens up to (not including) a top-level ";", "{" or "}".
func (p *parser) readPrelude() []token {
	depth := 0
	start := p.pos

	for !p.eof() {
		switch p.peek().tt {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.SemicolonToken, css.LeftBraceToken, css.RightBraceToken:
			if depth == 0 {
				return p.tokens[start:p.pos]
			}
		}
		p.pos++
	}

	return p.tokens[start:p.pos]
}

func (p *parser) parseBlock(topLevel bool) ([]Node, error) {
	nodes := make([]Node, 0)

	for {
		p.skipWhitespace()
		if p.eof() {
			if !topLevel {
				return nil, eris.New("unexpected end of stylesheet, missing }")
			}
			return nodes, nil
		}

		tok := p.peek()
		switch tok.tt {
		case css.RightBraceToken:
			if topLevel {
				return nil, eris.New("unexpected } at the top level")
			}
			p.pos++
			return nodes, nil
		case css.SemicolonToken:
			p.pos++
		case css.CommentToken:
			nodes = append(nodes, &Comment{Text: tok.data})
			p.pos++
		case css.AtKeywordToken:
			p.pos++
			node := &AtRule{Name: strings.ToLower(tok.data[1:])}
			node.Params = joinTokens(p.readPrelude())

			if !p.eof() && p.peek().tt == css.LeftBraceToken {
				p.pos++
				children, err := p.parseBlock(false)
				if err != nil {
					return nil, eris.Wrapf(err, "in @%s %s", node.Name, node.Params)
				}
				node.Block = true
				node.Children = children
			} else if !p.eof() && p.peek().tt == css.SemicolonToken {
				p.pos++
			}
			nodes = append(nodes, node)
		default:
			prelude := p.readPrelude()
			if !p.eof() && p.peek().tt == css.LeftBraceToken {
				p.pos++
				children, err := p.parseBlock(false)
				if err != nil {
					return nil, eris.Wrapf(err, "in rule %s", joinTokens(prelude))
				}

				nodes = append(nodes, &Rule{
					Selectors: splitSelectors(prelude),
					Children:  children,
				})
				continue
			}

			if !p.eof() && p.peek().tt == css.SemicolonToken {
				p.pos++
			}

			decl, err := parseDeclaration(prelude)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, decl)
		}
	}
}

func parseDeclaration(tokens []token) (*Declaration, error) {
	for idx, tok := range tokens {
		if tok.tt == css.ColonToken {
			prop := strings.TrimSpace(joinTokens(tokens[:idx]))
			if prop == "" {
				break
			}

			return &Declaration{
				Property: prop,
				Value:    joinTokens(tokens[idx+1:]),
			}, nil
		}
	}

	return nil, eris.Errorf("invalid declaration %q", joinTokens(tokens))
}

// splitSelectors splits a selector list at top-level commas
func splitSelectors(tokens []token) []string {
	result := make([]string, 0, 1)
	depth := 0
	start := 0

	for idx, tok := range tokens {
		switch tok.tt {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			depth--
		case css.CommaToken:
			if depth == 0 {
				result = append(result, joinTokens(tokens[start:idx]))
				start = idx + 1
			}
		}
	}

	return append(result, joinTokens(tokens[start:]))
}

// joinTokens renders tokens as text with comments dropped and whitespace collapsed
func joinTokens(tokens []token) string {
	var buf strings.Builder
	space := false

	for _, tok := range tokens {
		switch tok.tt {
		case css.CommentToken:
			continue
		case css.WhitespaceToken:
			space = true
			continue
		}

		if space && buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		space = false
		buf.WriteString(tok.data)
	}

	return buf.String()
}
