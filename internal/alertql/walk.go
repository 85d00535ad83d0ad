package alertql

// Walk visits expr and its children in pre-order. Returning false from fn skips
// the children of the node.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch n := expr.(type) {
	case *MapAccess:
		Walk(n.Map, fn)
	case *Binary:
		Walk(n.LHS, fn)
		Walk(n.RHS, fn)
	case *FunctionCall:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *ExpressionList:
		for _, item := range n.Items {
			Walk(item, fn)
		}
	case *AlertExpression:
		if n.Filter != nil {
			Walk(n.Filter, fn)
		}
	}
}

// Rewrite rebuilds expr bottom-up, replacing every node with the result of fn.
// The input tree is never modified; parents of replaced nodes are copied.
func Rewrite(expr Expression, fn func(Expression) (Expression, error)) (Expression, error) {
	if expr == nil {
		return nil, nil
	}

	switch n := expr.(type) {
	case *Binary:
		lhs, err := Rewrite(n.LHS, fn)
		if err != nil {
			return nil, err
		}
		rhs, err := Rewrite(n.RHS, fn)
		if err != nil {
			return nil, err
		}
		if lhs != n.LHS || rhs != n.RHS {
			expr = &Binary{Op: n.Op, LHS: lhs, RHS: rhs}
		}
	case *FunctionCall:
		args, changed, err := rewriteAll(n.Args, fn)
		if err != nil {
			return nil, err
		}
		if changed {
			expr = &FunctionCall{Name: n.Name, Args: args}
		}
	case *ExpressionList:
		items, changed, err := rewriteAll(n.Items, fn)
		if err != nil {
			return nil, err
		}
		if changed {
			expr = &ExpressionList{Items: items}
		}
	case *AlertExpression:
		filter, err := Rewrite(n.Filter, fn)
		if err != nil {
			return nil, err
		}
		if filter != n.Filter {
			cp := *n
			cp.Filter = filter
			expr = &cp
		}
	}
	return fn(expr)
}

func rewriteAll(exprs []Expression, fn func(Expression) (Expression, error)) ([]Expression, bool, error) {
	out := make([]Expression, len(exprs))
	changed := false
	for i, e := range exprs {
		r, err := Rewrite(e, fn)
		if err != nil {
			return nil, false, err
		}
		out[i] = r
		changed = changed || r != e
	}
	return out, changed, nil
}

// AlertExpressions returns the alert expressions of a rule in id order.
func AlertExpressions(expr Expression) []*AlertExpression {
	var alerts []*AlertExpression
	Walk(expr, func(e Expression) bool {
		if a, ok := e.(*AlertExpression); ok {
			alerts = append(alerts, a)
			return false
		}
		return true
	})
	return alerts
}

// Equal reports whether two expressions are structurally equal.
func Equal(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Literal:
		y := b.(*Literal)
		return x.Type == y.Type && formatLiteral(x) == formatLiteral(y)
	case *Identifier:
		return x.Name == b.(*Identifier).Name
	case *MapAccess:
		y := b.(*MapAccess)
		return x.Map.Name == y.Map.Name && x.Key == y.Key
	case *Binary:
		y := b.(*Binary)
		return x.Op == y.Op && Equal(x.LHS, y.LHS) && Equal(x.RHS, y.RHS)
	case *FunctionCall:
		y := b.(*FunctionCall)
		return x.Name == y.Name && equalAll(x.Args, y.Args)
	case *ExpressionList:
		return equalAll(x.Items, b.(*ExpressionList).Items)
	case *AlertExpression:
		y := b.(*AlertExpression)
		if x.ID != y.ID || x.From != y.From || x.Select != y.Select || x.Window != y.Window ||
			x.Comparator != y.Comparator || len(x.GroupBy) != len(y.GroupBy) {
			return false
		}
		for i := range x.GroupBy {
			if x.GroupBy[i] != y.GroupBy[i] {
				return false
			}
		}
		if (x.ExpectedWindow == nil) != (y.ExpectedWindow == nil) ||
			(x.ExpectedWindow != nil && *x.ExpectedWindow != *y.ExpectedWindow) {
			return false
		}
		if (x.Threshold == nil) != (y.Threshold == nil) ||
			(x.Threshold != nil && !Equal(x.Threshold, y.Threshold)) {
			return false
		}
		return Equal(x.Filter, y.Filter)
	}
	return false
}

func equalAll(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
