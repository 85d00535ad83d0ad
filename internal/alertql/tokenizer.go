package alertql

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token
type TokenType string

const (
	TokenIdent    TokenType = "ident"
	TokenString   TokenType = "string"
	TokenNumber   TokenType = "number"
	TokenOperator TokenType = "operator"
	TokenPunct    TokenType = "punct"
)

// Token represents a lexical token from the tokenizer
type Token struct {
	Type     TokenType `json:"type"`
	Value    string    `json:"value"`
	Position Position  `json:"position"`
	// Raw is the source text of the token, including quotes for strings.
	Raw string `json:"raw,omitempty"`
}

// is reports whether the token is the keyword or punctuation s, ignoring case for keywords.
func (t *Token) is(s string) bool {
	if t == nil {
		return false
	}
	switch t.Type {
	case TokenIdent:
		return strings.EqualFold(t.Value, s)
	case TokenPunct, TokenOperator:
		return t.Value == s
	default:
		return false
	}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// isIdentStart returns true if the rune can start an identifier
func isIdentStart(r rune) bool {
	return isLetter(r) || r == '_'
}

// isIdentChar returns true if the rune can be part of an identifier. Dataset
// names such as jvm-metrics contain dashes.
func isIdentChar(r rune) bool {
	return isLetter(r) || isDigit(r) || r == '_' || r == '-'
}

const punctChars = "(){}[],.*"

// Tokenize converts expression text into a sequence of tokens
func Tokenize(input string) ([]Token, error) {
	runes := []rune(input)
	var tokens []Token
	line, column := 1, 1

	advance := func(from, to int) {
		for _, r := range runes[from:to] {
			if r == '\n' {
				line++
				column = 1
			} else {
				column++
			}
		}
	}

	for i := 0; i < len(runes); {
		char := runes[i]
		pos := Position{Line: line, Column: column}

		switch {
		case unicode.IsSpace(char):
			advance(i, i+1)
			i++

		case char == '\'' || char == '"':
			var value strings.Builder
			j := i + 1
			closed := false
			for j < len(runes) {
				c := runes[j]
				if c == '\\' && j+1 < len(runes) {
					value.WriteRune(runes[j+1])
					j += 2
					continue
				}
				if c == char {
					closed = true
					j++
					break
				}
				value.WriteRune(c)
				j++
			}
			if !closed {
				return nil, &ParseError{
					Code:     ErrUnterminatedString,
					Message:  "unterminated string literal",
					Fragment: string(runes[i:]),
					Position: &pos,
				}
			}
			tokens = append(tokens, Token{Type: TokenString, Value: value.String(), Position: pos, Raw: string(runes[i:j])})
			advance(i, j)
			i = j

		case isDigit(char) || (char == '-' && i+1 < len(runes) && isDigit(runes[i+1])):
			j := i + 1
			for j < len(runes) && (isDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			// unit or magnitude suffix
			if j < len(runes) && runes[j] == '%' {
				j++
			} else {
				for j < len(runes) && isLetter(runes[j]) {
					j++
				}
			}
			text := string(runes[i:j])
			tokens = append(tokens, Token{Type: TokenNumber, Value: text, Position: pos, Raw: text})
			advance(i, j)
			i = j

		case isIdentStart(char):
			j := i + 1
			for j < len(runes) && isIdentChar(runes[j]) {
				j++
			}
			text := string(runes[i:j])
			tokens = append(tokens, Token{Type: TokenIdent, Value: text, Position: pos, Raw: text})
			advance(i, j)
			i = j

		case char == '=' || char == '!' || char == '<' || char == '>':
			j := i + 1
			if j < len(runes) {
				two := string(runes[i : j+1])
				if two == "==" || two == "!=" || two == "<>" || two == ">=" || two == "<=" {
					j++
				}
			}
			op := string(runes[i:j])
			if op == "!" {
				return nil, &ParseError{
					Code:     ErrUnknownOperator,
					Message:  "unknown operator '!'",
					Fragment: op,
					Position: &pos,
				}
			}
			tokens = append(tokens, Token{Type: TokenOperator, Value: op, Position: pos, Raw: op})
			advance(i, j)
			i = j

		case strings.ContainsRune(punctChars, char):
			tokens = append(tokens, Token{Type: TokenPunct, Value: string(char), Position: pos, Raw: string(char)})
			advance(i, i+1)
			i++

		default:
			return nil, &ParseError{
				Code:     ErrUnexpectedChar,
				Message:  "unexpected character",
				Fragment: string(char),
				Position: &pos,
			}
		}
	}

	return tokens, nil
}
