package alertql

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser converts tokens into an AST
type Parser struct {
	tokens   []Token
	position int
	nextID   int
}

// NewParser creates a new parser for the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses a rule: one or more alert expressions combined with and/or and
// parentheses. Alert expressions get ids "1", "2", ... in the order they appear.
func Parse(text string) (Expression, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	p := NewParser(tokens)
	expr, err := p.ParseRule()
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// ParseAlert parses text that must hold exactly one alert expression.
func ParseAlert(text string) (*AlertExpression, error) {
	expr, err := Parse(text)
	if err != nil {
		return nil, err
	}
	alert, ok := expr.(*AlertExpression)
	if !ok {
		return nil, &ParseError{
			Code:     ErrUnexpectedToken,
			Message:  "expected a single alert expression",
			Fragment: text,
		}
	}
	return alert, nil
}

// ParseFilter parses a bare filter such as appName = 'a', cpu > 1. A comma is
// an AND with the lowest precedence.
func ParseFilter(text string) (Expression, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	p := NewParser(tokens)
	if len(tokens) == 0 {
		return nil, &ParseError{Code: ErrEmptyExpression, Message: "empty filter expression"}
	}
	expr, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return expr, nil
}

// ParseRule parses all tokens as a rule.
func (p *Parser) ParseRule() (Expression, error) {
	if len(p.tokens) == 0 {
		return nil, &ParseError{Code: ErrEmptyExpression, Message: "empty expression"}
	}
	expr, err := p.parseLogical(p.parseRuleTerm, false)
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) peek(offset int) *Token {
	idx := p.position + offset
	if idx >= 0 && idx < len(p.tokens) {
		return &p.tokens[idx]
	}
	return nil
}

func (p *Parser) endPosition() *Position {
	if len(p.tokens) == 0 {
		return &Position{Line: 1, Column: 1}
	}
	last := p.tokens[len(p.tokens)-1]
	return &Position{Line: last.Position.Line, Column: last.Position.Column + len([]rune(last.Raw))}
}

func (p *Parser) consume() (*Token, error) {
	if p.position >= len(p.tokens) {
		return nil, &ParseError{
			Code:     ErrUnexpectedEnd,
			Message:  "unexpected end of expression",
			Position: p.endPosition(),
		}
	}
	token := &p.tokens[p.position]
	p.position++
	return token, nil
}

// expect consumes the next token and checks that it is the keyword or punctuation s.
func (p *Parser) expect(s string) (*Token, error) {
	token, err := p.consume()
	if err != nil {
		return nil, &ParseError{
			Code:     ErrUnexpectedEnd,
			Message:  fmt.Sprintf("expected '%s' but reached end of expression", s),
			Position: p.endPosition(),
		}
	}
	if !token.is(s) {
		return nil, errorAt(token, ErrUnexpectedToken, fmt.Sprintf("expected '%s'", s))
	}
	return token, nil
}

func (p *Parser) expectType(tt TokenType, what string) (*Token, error) {
	token, err := p.consume()
	if err != nil {
		return nil, &ParseError{
			Code:     ErrUnexpectedEnd,
			Message:  "expected " + what + " but reached end of expression",
			Position: p.endPosition(),
		}
	}
	if token.Type != tt {
		return nil, errorAt(token, ErrUnexpectedToken, "expected "+what)
	}
	return token, nil
}

func (p *Parser) expectEnd() error {
	if token := p.peek(0); token != nil {
		return errorAt(token, ErrUnexpectedToken, "unexpected trailing input")
	}
	return nil
}

func errorAt(token *Token, code, message string) *ParseError {
	pos := token.Position
	return &ParseError{Code: code, Message: message, Fragment: token.Raw, Position: &pos}
}

// logicalPrecedence returns the binding power of a logical connective, or 0 if
// the token is not one. The comma is only a connective inside filters.
func logicalPrecedence(token *Token, allowComma bool) (Operator, int) {
	switch {
	case token == nil:
		return "", 0
	case allowComma && token.is(","):
		return OpAnd, 1
	case token.is("or"):
		return OpOr, 2
	case token.is("and"):
		return OpAnd, 3
	default:
		return "", 0
	}
}

func (p *Parser) parseLogical(term func() (Expression, error), allowComma bool) (Expression, error) {
	left, err := term()
	if err != nil {
		return nil, err
	}
	return p.parseBinaryExpression(left, 1, term, allowComma)
}

// parseBinaryExpression is a precedence climbing loop producing left-associative trees.
func (p *Parser) parseBinaryExpression(left Expression, minPrecedence int, term func() (Expression, error), allowComma bool) (Expression, error) {
	for {
		op, precedence := logicalPrecedence(p.peek(0), allowComma)
		if precedence == 0 || precedence < minPrecedence {
			break
		}
		p.position++ // consume the connective

		right, err := term()
		if err != nil {
			return nil, err
		}

		// Look ahead for higher precedence operators
		for {
			_, nextPrecedence := logicalPrecedence(p.peek(0), allowComma)
			if nextPrecedence <= precedence {
				break
			}
			right, err = p.parseBinaryExpression(right, nextPrecedence, term, allowComma)
			if err != nil {
				return nil, err
			}
		}

		left = &Binary{Op: op, LHS: left, RHS: right}
	}
	return left, nil
}

func (p *Parser) parseRuleTerm() (Expression, error) {
	token := p.peek(0)
	if token == nil {
		_, err := p.consume()
		return nil, err
	}
	if token.is("(") {
		p.position++
		expr, err := p.parseLogical(p.parseRuleTerm, false)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseAlert()
}

func (p *Parser) parseAlert() (*AlertExpression, error) {
	aggToken, err := p.expectType(TokenIdent, "aggregator")
	if err != nil {
		return nil, err
	}
	aggregator, ok := ParseAggregator(aggToken.Value)
	if !ok {
		return nil, errorAt(aggToken, ErrUnknownAggregator, fmt.Sprintf("unknown aggregator %q, expected one of avg, count, sum, min, max, first, last", aggToken.Value))
	}

	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	dataset, err := p.expectType(TokenIdent, "dataset name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	field, err := p.expectType(TokenIdent, "metric name")
	if err != nil {
		return nil, err
	}

	alert := &AlertExpression{
		From:   dataset.Value,
		Select: Selector{Aggregator: aggregator, Field: field.Value},
		Window: DefaultWindow,
	}

	if p.peek(0).is("{") {
		p.position++
		if !p.peek(0).is("}") {
			alert.Filter, err = p.parseFilter()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}

	if p.peek(0).is("[") {
		window, token, err := p.parseBracketDuration()
		if err != nil {
			return nil, err
		}
		if window.Value <= 0 {
			return nil, errorAt(token, ErrInvalidWindow, "window must be a positive duration")
		}
		alert.Window = window
	}

	if p.peek(0).is("by") {
		p.position++
		alert.GroupBy, err = p.parseNameList()
		if err != nil {
			return nil, err
		}
	}

	if err := p.parseAlertPredicate(alert); err != nil {
		return nil, err
	}

	p.nextID++
	alert.ID = strconv.Itoa(p.nextID)
	return alert, nil
}

func (p *Parser) parseBracketDuration() (Duration, *Token, error) {
	if _, err := p.expect("["); err != nil {
		return Duration{}, nil, err
	}
	token, err := p.expectType(TokenNumber, "duration")
	if err != nil {
		return Duration{}, nil, err
	}
	d, err := ParseDuration(token.Value)
	if err != nil {
		return Duration{}, nil, errorAt(token, ErrInvalidWindow, err.Error())
	}
	if _, err := p.expect("]"); err != nil {
		return Duration{}, nil, err
	}
	return d, token, nil
}

func (p *Parser) parseNameList() ([]string, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := p.expectType(TokenIdent, "column name")
		if err != nil {
			return nil, err
		}
		names = append(names, name.Value)
		if !p.peek(0).is(",") {
			break
		}
		p.position++
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *Parser) parseAlertPredicate(alert *AlertExpression) error {
	token, err := p.consume()
	if err != nil {
		return &ParseError{Code: ErrUnexpectedEnd, Message: "expected comparator", Position: p.endPosition()}
	}

	switch {
	case token.is("is"):
		next, err := p.consume()
		if err != nil {
			return &ParseError{Code: ErrUnexpectedEnd, Message: "expected 'null' after 'is'", Position: p.endPosition()}
		}
		if !next.is("null") {
			return errorAt(next, ErrInvalidNull, "'is' only accepts null")
		}
		alert.Comparator = CmpIsNull
	case token.Type == TokenOperator:
		op, _ := ParseOperator(token.Value)
		alert.Comparator = Comparator(op)
		if p.peek(0).is("null") {
			nullToken := p.peek(0)
			if op != OpEQ {
				return errorAt(nullToken, ErrInvalidNull, fmt.Sprintf("null can not be compared with '%s', use 'is null'", token.Value))
			}
			p.position++
			alert.Comparator = CmpIsNull
		}
	default:
		return errorAt(token, ErrUnknownOperator, "expected comparator")
	}

	if alert.Comparator == CmpIsNull {
		if next := p.peek(0); next != nil && (next.Type == TokenNumber || next.is("[")) {
			return errorAt(next, ErrInvalidThreshold, "'is null' takes no threshold or expected window")
		}
		return nil
	}

	thresholdToken, err := p.expectType(TokenNumber, "threshold")
	if err != nil {
		return err
	}
	threshold, err := parseNumberLiteral(thresholdToken.Value)
	if err != nil {
		return errorAt(thresholdToken, ErrInvalidNumber, err.Error())
	}
	if !threshold.IsNumeric() {
		return errorAt(thresholdToken, ErrInvalidThreshold, "threshold must be a number or a percentage")
	}
	alert.Threshold = threshold

	if p.peek(0).is("[") {
		expected, token, err := p.parseBracketDuration()
		if err != nil {
			return err
		}
		if expected.Value >= 0 {
			return errorAt(token, ErrInvalidWindow, "expected window must be a negative duration")
		}
		alert.ExpectedWindow = &expected
	}

	if threshold.Type == LitPercentage && alert.ExpectedWindow == nil {
		return errorAt(thresholdToken, ErrInvalidThreshold, "percentage threshold requires an expected window, e.g. [-1d]")
	}
	return nil
}

func (p *Parser) parseFilter() (Expression, error) {
	return p.parseLogical(p.parseFilterTerm, true)
}

func (p *Parser) parseFilterTerm() (Expression, error) {
	token := p.peek(0)
	if token == nil {
		_, err := p.consume()
		return nil, err
	}
	if token.is("(") {
		p.position++
		expr, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseOperand() (Expression, error) {
	name, err := p.expectType(TokenIdent, "column name")
	if err != nil {
		return nil, err
	}
	ident := &Identifier{Name: name.Value}

	switch {
	case p.peek(0).is("["):
		p.position++
		key, err := p.expectType(TokenString, "map key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect("]"); err != nil {
			return nil, err
		}
		return &MapAccess{Map: ident, Key: key.Value}, nil

	case p.peek(0).is("("):
		p.position++
		call := &FunctionCall{Name: strings.ToLower(name.Value)}
		for !p.peek(0).is(")") {
			arg, err := p.parseArgument()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.peek(0).is(",") {
				break
			}
			p.position++
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	return ident, nil
}

func (p *Parser) parseArgument() (Expression, error) {
	token := p.peek(0)
	switch {
	case token == nil:
		_, err := p.consume()
		return nil, err
	case token.is("*"):
		p.position++
		return NewAsterisk(), nil
	case token.Type == TokenIdent && !isValueKeyword(token):
		return p.parseOperand()
	default:
		return p.parseLiteral()
	}
}

func isValueKeyword(token *Token) bool {
	return token.is("true") || token.is("false") || token.is("null")
}

func (p *Parser) parseLiteral() (*Literal, error) {
	token, err := p.consume()
	if err != nil {
		return nil, &ParseError{Code: ErrUnexpectedEnd, Message: "expected a value", Position: p.endPosition()}
	}
	switch {
	case token.Type == TokenString:
		return NewString(token.Value), nil
	case token.Type == TokenNumber:
		lit, err := parseNumberLiteral(token.Value)
		if err != nil {
			return nil, errorAt(token, ErrInvalidNumber, err.Error())
		}
		return lit, nil
	case token.is("true"):
		return NewBool(true), nil
	case token.is("false"):
		return NewBool(false), nil
	case token.is("null"):
		return NewNull(), nil
	default:
		return nil, errorAt(token, ErrUnexpectedToken, "expected a value")
	}
}

// parseComparisonOperator reads operators made of one or two tokens, such as
// '>=', 'like', 'not in' and 'is not'.
func (p *Parser) parseComparisonOperator() (Operator, *Token, error) {
	token, err := p.consume()
	if err != nil {
		return "", nil, &ParseError{Code: ErrUnexpectedEnd, Message: "expected operator", Position: p.endPosition()}
	}

	if token.Type == TokenOperator {
		op, _ := ParseOperator(token.Value)
		return op, token, nil
	}

	switch {
	case token.is("in"):
		return OpIn, token, nil
	case token.is("is"):
		if p.peek(0).is("not") {
			p.position++
			return OpIsNot, token, nil
		}
		return OpIs, token, nil
	case token.is("not"):
		next, err := p.consume()
		if err != nil {
			return "", nil, &ParseError{Code: ErrUnexpectedEnd, Message: "expected 'in' or 'like' after 'not'", Position: p.endPosition()}
		}
		switch {
		case next.is("in"):
			return OpNotIn, token, nil
		case next.is("like"):
			return OpNotLike, token, nil
		}
		return "", nil, errorAt(next, ErrUnknownOperator, "expected 'in' or 'like' after 'not'")
	case token.Type == TokenIdent:
		if op, ok := ParseOperator(token.Value); ok {
			return op, token, nil
		}
	}
	return "", nil, errorAt(token, ErrUnknownOperator, "expected operator")
}

func (p *Parser) parseComparison() (Expression, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, opToken, err := p.parseComparisonOperator()
	if err != nil {
		return nil, err
	}

	switch op {
	case OpIn, OpNotIn:
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, LHS: lhs, RHS: list}, nil

	case OpIs, OpIsNot:
		next, err := p.consume()
		if err != nil {
			return nil, &ParseError{Code: ErrUnexpectedEnd, Message: "expected 'null'", Position: p.endPosition()}
		}
		if !next.is("null") {
			return nil, errorAt(next, ErrInvalidNull, "'is' only accepts null")
		}
		return &Binary{Op: op, LHS: lhs, RHS: NewNull()}, nil
	}

	valueToken := p.peek(0)
	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	switch {
	case value.Type == LitNull && op.IsOrdering():
		return nil, errorAt(valueToken, ErrInvalidNull, fmt.Sprintf("null can not be compared with '%s'", opToken.Value))
	case value.Type == LitNull && op != OpEQ && op != OpNE:
		return nil, errorAt(valueToken, ErrInvalidNull, fmt.Sprintf("null can not be used with '%s'", op))
	case isPatternOperator(op) && value.Type != LitString:
		return nil, errorAt(valueToken, ErrTypeMismatch, fmt.Sprintf("'%s' requires a string pattern", op))
	}
	return &Binary{Op: op, LHS: lhs, RHS: value}, nil
}

func isPatternOperator(op Operator) bool {
	switch op {
	case OpLike, OpNotLike, OpContains, OpStartsWith, OpEndsWith:
		return true
	default:
		return false
	}
}

// literalFamily groups literal kinds that may be mixed in one IN list.
func literalFamily(l *Literal) string {
	switch {
	case l.IsNumeric():
		return "numeric"
	case l.Type == LitString:
		return "string"
	default:
		return string(l.Type)
	}
}

func (p *Parser) parseList() (*ExpressionList, error) {
	open, err := p.expect("(")
	if err != nil {
		return nil, err
	}
	list := &ExpressionList{}
	family := ""
	for !p.peek(0).is(")") {
		itemToken := p.peek(0)
		item, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if item.Type == LitNull {
			return nil, errorAt(itemToken, ErrInvalidNull, "null is not allowed in an IN list")
		}
		f := literalFamily(item)
		if family != "" && f != family {
			return nil, errorAt(itemToken, ErrTypeMismatch, fmt.Sprintf("IN list mixes %s and %s values", family, f))
		}
		family = f
		list.Items = append(list.Items, item)
		if !p.peek(0).is(",") {
			break
		}
		p.position++
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, errorAt(open, ErrUnexpectedToken, "IN list must not be empty")
	}
	return list, nil
}
