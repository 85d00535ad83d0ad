package alertql

import (
	"strconv"
	"strings"
	"time"
)

// Format renders an expression as DSL text. String literals are always written
// with double quotes, so Format(Parse(t)) is stable under repeated parsing.
func Format(expr Expression) string {
	var sb strings.Builder
	writeExpr(&sb, expr, 0, false)
	return sb.String()
}

// precedence of a node for parenthesization: logical connectives bind looser than
// comparisons, which bind looser than operands.
func precedence(expr Expression) int {
	if b, ok := expr.(*Binary); ok {
		switch b.Op {
		case OpOr:
			return 2
		case OpAnd:
			return 3
		default:
			return 4
		}
	}
	return 5
}

func writeExpr(sb *strings.Builder, expr Expression, parent int, rightSide bool) {
	prec := precedence(expr)
	paren := prec < parent || (rightSide && prec == parent && prec <= 3)
	if paren {
		sb.WriteByte('(')
	}

	switch n := expr.(type) {
	case nil:
	case *Literal:
		sb.WriteString(formatLiteral(n))
	case *Identifier:
		sb.WriteString(n.Name)
	case *MapAccess:
		sb.WriteString(n.Map.Name)
		sb.WriteByte('[')
		sb.WriteString(quote(n.Key))
		sb.WriteByte(']')
	case *Binary:
		writeExpr(sb, n.LHS, prec, false)
		sb.WriteByte(' ')
		sb.WriteString(string(n.Op))
		sb.WriteByte(' ')
		writeExpr(sb, n.RHS, prec, true)
	case *FunctionCall:
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, arg, 0, false)
		}
		sb.WriteByte(')')
	case *ExpressionList:
		sb.WriteByte('(')
		for i, item := range n.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, item, 0, false)
		}
		sb.WriteByte(')')
	case *AlertExpression:
		writeAlert(sb, n)
	}

	if paren {
		sb.WriteByte(')')
	}
}

// writeFilter writes the filter of an alert expression. The top level AND chain
// is written with commas, the lowest precedence connective inside braces.
func writeFilter(sb *strings.Builder, expr Expression) {
	if b, ok := expr.(*Binary); ok && b.Op == OpAnd {
		writeFilter(sb, b.LHS)
		sb.WriteString(", ")
		writeExpr(sb, b.RHS, 2, false)
		return
	}
	writeExpr(sb, expr, 2, false)
}

func writeAlert(sb *strings.Builder, a *AlertExpression) {
	sb.WriteString(string(a.Select.Aggregator))
	sb.WriteByte('(')
	sb.WriteString(a.From)
	sb.WriteByte('.')
	sb.WriteString(a.Select.Field)
	if a.Filter != nil {
		sb.WriteByte('{')
		writeFilter(sb, a.Filter)
		sb.WriteByte('}')
	}
	sb.WriteString(")[")
	sb.WriteString(a.Window.String())
	sb.WriteByte(']')
	if len(a.GroupBy) > 0 {
		sb.WriteString(" by (")
		sb.WriteString(strings.Join(a.GroupBy, ", "))
		sb.WriteByte(')')
	}
	sb.WriteByte(' ')
	sb.WriteString(string(a.Comparator))
	if a.Threshold != nil {
		sb.WriteByte(' ')
		sb.WriteString(formatLiteral(a.Threshold))
	}
	if a.ExpectedWindow != nil {
		sb.WriteByte('[')
		sb.WriteString(a.ExpectedWindow.String())
		sb.WriteByte(']')
	}
}

func formatLiteral(l *Literal) string {
	switch v := l.Value.(type) {
	case string:
		return quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatDouble(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return quote(v.UTC().Format(time.RFC3339Nano))
	case Duration:
		return v.String()
	case HumanNumber:
		return v.Text
	case Percentage:
		return v.Text
	}
	switch l.Type {
	case LitAsterisk:
		return "*"
	default:
		return "null"
	}
}

// formatDouble always keeps a decimal point so the value reads back as a double.
func formatDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
