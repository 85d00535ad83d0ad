package alertql

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// The participle grammar below accepts the same language as Parser. It checks
// syntax only; semantic rules such as window signs and IN list types are
// enforced by Parser.

var alertQLLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`},

	{Name: "Number", Pattern: `-?[0-9]+(?:\.[0-9]+)?(?:%|[a-zA-Z]+)?`},

	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_-]*`},

	{Name: "Operator", Pattern: `==|!=|<>|>=|<=|[=><]`},

	{Name: "Punct", Pattern: `[(){}\[\],.*]`},
})

// PRule handles OR precedence (lowest) between alert expressions
type PRule struct {
	Left  *PRuleAnd   `parser:"@@"`
	Right []*PRuleAnd `parser:"( 'or':Ident @@ )*"`
}

// PRuleAnd handles AND precedence (higher than OR)
type PRuleAnd struct {
	Left  *PRuleTerm   `parser:"@@"`
	Right []*PRuleTerm `parser:"( 'and':Ident @@ )*"`
}

// PRuleTerm is either a grouped rule or a single alert expression
type PRuleTerm struct {
	Group *PRule  `parser:"( '(' @@ ')'"`
	Alert *PAlert `parser:"| @@ )"`
}

type PAlert struct {
	Aggregator string      `parser:"@Ident '('"`
	Dataset    string      `parser:"@Ident '.'"`
	Field      string      `parser:"@Ident"`
	Filter     *PFilter    `parser:"( '{' @@? '}' )? ')'"`
	Window     *string     `parser:"( '[' @Number ']' )?"`
	GroupBy    []string    `parser:"( 'by':Ident '(' @Ident ( ',' @Ident )* ')' )?"`
	Predicate  *PPredicate `parser:"@@"`
}

type PPredicate struct {
	IsNull    bool    `parser:"(  @( 'is':Ident 'null':Ident )"`
	Operator  string  `parser:" | @Operator"`
	Null      bool    `parser:"   ( @'null':Ident"`
	Threshold *string `parser:"   | @Number"`
	Expected  *string `parser:"     ( '[' @Number ']' )? ) )"`
}

// PFilter is a comma separated conjunction
type PFilter struct {
	Left  *PFilterOr   `parser:"@@"`
	Right []*PFilterOr `parser:"( ',' @@ )*"`
}

type PFilterOr struct {
	Left  *PFilterAnd   `parser:"@@"`
	Right []*PFilterAnd `parser:"( 'or':Ident @@ )*"`
}

type PFilterAnd struct {
	Left  *PFilterTerm   `parser:"@@"`
	Right []*PFilterTerm `parser:"( 'and':Ident @@ )*"`
}

type PFilterTerm struct {
	Group      *PFilter     `parser:"( '(' @@ ')'"`
	Comparison *PComparison `parser:"| @@ )"`
}

type PComparison struct {
	Operand *POperand `parser:"@@"`
	In      *PIn      `parser:"( @@"`
	Is      *PIs      `parser:"| @@"`
	Compare *PCompare `parser:"| @@ )"`
}

type PIn struct {
	Not   bool      `parser:"@'not':Ident? 'in':Ident"`
	Items []*PValue `parser:"'(' @@ ( ',' @@ )* ')'"`
}

type PIs struct {
	Not bool `parser:"'is':Ident @'not':Ident? 'null':Ident"`
}

type PCompare struct {
	Operator string  `parser:"( @Operator | @( 'not':Ident? 'like':Ident ) | @( 'contains':Ident | 'startswith':Ident | 'endswith':Ident ) )"`
	Value    *PValue `parser:"@@"`
}

type POperand struct {
	Name string  `parser:"@Ident"`
	Key  *string `parser:"( '[' @String ']'"`
	Call *PCall  `parser:"| @@ )?"`
}

type PCall struct {
	Args []*PArg `parser:"'(' ( @@ ( ',' @@ )* )? ')'"`
}

type PArg struct {
	Asterisk bool      `parser:"( @'*'"`
	Value    *PValue   `parser:"| @@"`
	Operand  *POperand `parser:"| @@ )"`
}

// PValue is a literal value
type PValue struct {
	String  *string `parser:"( @String"`
	Number  *string `parser:"| @Number"`
	Keyword *string `parser:"| @( 'true':Ident | 'false':Ident | 'null':Ident ) )"`
}

var (
	ruleParser = participle.MustBuild[PRule](
		participle.Lexer(alertQLLexer),
		participle.CaseInsensitive("Ident"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	)

	filterParser = participle.MustBuild[PFilter](
		participle.Lexer(alertQLLexer),
		participle.CaseInsensitive("Ident"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	)
)

// ParseSyntaxTree parses a rule into the participle syntax tree.
func ParseSyntaxTree(input string) (*PRule, error) {
	rule, err := ruleParser.ParseString("", input)
	if err != nil {
		return nil, convertParticipleError(err)
	}
	return rule, nil
}

// CheckSyntax validates rule syntax without building the AST.
func CheckSyntax(input string) error {
	_, err := ParseSyntaxTree(input)
	return err
}

// CheckFilterSyntax validates the syntax of a bare filter expression.
func CheckFilterSyntax(input string) error {
	if _, err := filterParser.ParseString("", input); err != nil {
		return convertParticipleError(err)
	}
	return nil
}

func convertParticipleError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		return &ParseError{
			Code:     ErrUnexpectedToken,
			Message:  perr.Message(),
			Position: &Position{Line: pos.Line, Column: pos.Column},
		}
	}
	return &ParseError{Code: ErrUnexpectedToken, Message: err.Error()}
}

// Metrics returns dataset.field of every alert expression in the tree, in order.
func (r *PRule) Metrics() []string {
	var out []string
	var visitRule func(*PRule)
	visitTerm := func(t *PRuleTerm) {
		switch {
		case t.Group != nil:
			visitRule(t.Group)
		case t.Alert != nil:
			out = append(out, fmt.Sprintf("%s.%s", t.Alert.Dataset, t.Alert.Field))
		}
	}
	visitAnd := func(a *PRuleAnd) {
		visitTerm(a.Left)
		for _, t := range a.Right {
			visitTerm(t)
		}
	}
	visitRule = func(r *PRule) {
		visitAnd(r.Left)
		for _, a := range r.Right {
			visitAnd(a)
		}
	}
	visitRule(r)
	return out
}
