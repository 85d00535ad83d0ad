package alertql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type literalJSON struct {
	Type  NodeKind        `json:"type"`
	Kind  LiteralKind     `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (l *Literal) MarshalJSON() ([]byte, error) {
	out := literalJSON{Type: NodeLiteral, Kind: l.Type}
	var value any
	switch v := l.Value.(type) {
	case time.Time:
		value = v.UTC().Format(time.RFC3339Nano)
	case Duration:
		value = v.String()
	case HumanNumber:
		value = v.Text
	case Percentage:
		value = v.Text
	default:
		value = v
	}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	return json.Marshal(out)
}

func decodeLiteral(data []byte) (Expression, error) {
	var in literalJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}

	var text string
	switch in.Kind {
	case LitString, LitTimestamp, LitDuration, LitNumber, LitPercentage:
		if err := json.Unmarshal(in.Value, &text); err != nil {
			return nil, fmt.Errorf("invalid %s literal: %w", in.Kind, err)
		}
	}

	switch in.Kind {
	case LitString:
		return NewString(text), nil
	case LitLong:
		var v int64
		if err := json.Unmarshal(in.Value, &v); err != nil {
			return nil, fmt.Errorf("invalid long literal: %w", err)
		}
		return NewLong(v), nil
	case LitDouble:
		var v float64
		if err := json.Unmarshal(in.Value, &v); err != nil {
			return nil, fmt.Errorf("invalid double literal: %w", err)
		}
		return NewDouble(v), nil
	case LitBool:
		var v bool
		if err := json.Unmarshal(in.Value, &v); err != nil {
			return nil, fmt.Errorf("invalid bool literal: %w", err)
		}
		return NewBool(v), nil
	case LitNull:
		return NewNull(), nil
	case LitAsterisk:
		return NewAsterisk(), nil
	case LitTimestamp:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp literal: %w", err)
		}
		return NewTimestamp(t), nil
	case LitDuration:
		d, err := ParseDuration(text)
		if err != nil {
			return nil, err
		}
		return NewDurationLiteral(d), nil
	case LitNumber:
		h, err := ParseHumanNumber(text)
		if err != nil {
			return nil, err
		}
		return &Literal{Type: LitNumber, Value: h}, nil
	case LitPercentage:
		pct, err := ParsePercentage(text)
		if err != nil {
			return nil, err
		}
		return &Literal{Type: LitPercentage, Value: pct}, nil
	default:
		return nil, fmt.Errorf("unknown literal kind %q", in.Kind)
	}
}

func (i *Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type NodeKind `json:"type"`
		Name string   `json:"name"`
	}{NodeIdentifier, i.Name})
}

type mapAccessJSON struct {
	Type NodeKind `json:"type"`
	Map  string   `json:"map"`
	Key  string   `json:"key"`
}

func (m *MapAccess) MarshalJSON() ([]byte, error) {
	return json.Marshal(mapAccessJSON{NodeMapAccess, m.Map.Name, m.Key})
}

type binaryJSON struct {
	Type NodeKind        `json:"type"`
	Op   Operator        `json:"op"`
	LHS  json.RawMessage `json:"lhs"`
	RHS  json.RawMessage `json:"rhs"`
}

func (b *Binary) MarshalJSON() ([]byte, error) {
	lhs, err := json.Marshal(b.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := json.Marshal(b.RHS)
	if err != nil {
		return nil, err
	}
	return json.Marshal(binaryJSON{NodeBinary, b.Op, lhs, rhs})
}

type functionJSON struct {
	Type NodeKind          `json:"type"`
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args"`
}

func (f *FunctionCall) MarshalJSON() ([]byte, error) {
	args, err := marshalAll(f.Args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(functionJSON{NodeFunction, f.Name, args})
}

type listJSON struct {
	Type  NodeKind          `json:"type"`
	Items []json.RawMessage `json:"items"`
}

func (e *ExpressionList) MarshalJSON() ([]byte, error) {
	items, err := marshalAll(e.Items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(listJSON{NodeList, items})
}

type alertJSON struct {
	Type           NodeKind        `json:"type"`
	ID             string          `json:"id"`
	From           string          `json:"from"`
	Select         selectorJSON    `json:"select"`
	Filter         json.RawMessage `json:"filter,omitempty"`
	Window         string          `json:"window"`
	GroupBy        []string        `json:"groupBy,omitempty"`
	Comparator     Comparator      `json:"comparator"`
	Threshold      json.RawMessage `json:"threshold,omitempty"`
	ExpectedWindow string          `json:"expectedWindow,omitempty"`
}

type selectorJSON struct {
	Aggregator Aggregator `json:"aggregator"`
	Field      string     `json:"field"`
}

func (a *AlertExpression) MarshalJSON() ([]byte, error) {
	out := alertJSON{
		Type:       NodeAlert,
		ID:         a.ID,
		From:       a.From,
		Select:     selectorJSON(a.Select),
		Window:     a.Window.String(),
		GroupBy:    a.GroupBy,
		Comparator: a.Comparator,
	}
	var err error
	if a.Filter != nil {
		if out.Filter, err = json.Marshal(a.Filter); err != nil {
			return nil, err
		}
	}
	if a.Threshold != nil {
		if out.Threshold, err = json.Marshal(a.Threshold); err != nil {
			return nil, err
		}
	}
	if a.ExpectedWindow != nil {
		out.ExpectedWindow = a.ExpectedWindow.String()
	}
	return json.Marshal(out)
}

func marshalAll(exprs []Expression) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(exprs))
	for _, e := range exprs {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// decoders maps a node type discriminator to its decoder.
var decoders map[NodeKind]func([]byte) (Expression, error)

func init() {
	decoders = map[NodeKind]func([]byte) (Expression, error){
		NodeLiteral:    decodeLiteral,
		NodeIdentifier: decodeIdentifier,
		NodeMapAccess:  decodeMapAccess,
		NodeBinary:     decodeBinary,
		NodeFunction:   decodeFunction,
		NodeList:       decodeList,
		NodeAlert:      decodeAlert,
	}
}

// UnmarshalExpression decodes the JSON form of any expression node.
func UnmarshalExpression(data []byte) (Expression, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var head struct {
		Type NodeKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid expression JSON: %w", err)
	}
	decode, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("unknown expression type %q", head.Type)
	}
	return decode(data)
}

func decodeIdentifier(data []byte) (Expression, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &Identifier{Name: in.Name}, nil
}

func decodeMapAccess(data []byte) (Expression, error) {
	var in mapAccessJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &MapAccess{Map: &Identifier{Name: in.Map}, Key: in.Key}, nil
}

func decodeBinary(data []byte) (Expression, error) {
	var in binaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	lhs, err := UnmarshalExpression(in.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := UnmarshalExpression(in.RHS)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: in.Op, LHS: lhs, RHS: rhs}, nil
}

func decodeAll(raw []json.RawMessage) ([]Expression, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Expression, 0, len(raw))
	for _, r := range raw {
		e, err := UnmarshalExpression(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeFunction(data []byte) (Expression, error) {
	var in functionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	args, err := decodeAll(in.Args)
	if err != nil {
		return nil, err
	}
	return &FunctionCall{Name: in.Name, Args: args}, nil
}

func decodeList(data []byte) (Expression, error) {
	var in listJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	items, err := decodeAll(in.Items)
	if err != nil {
		return nil, err
	}
	return &ExpressionList{Items: items}, nil
}

func decodeAlert(data []byte) (Expression, error) {
	var in alertJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	window, err := ParseDuration(in.Window)
	if err != nil {
		return nil, err
	}
	alert := &AlertExpression{
		ID:         in.ID,
		From:       in.From,
		Select:     Selector(in.Select),
		Window:     window,
		GroupBy:    in.GroupBy,
		Comparator: in.Comparator,
	}
	if alert.Filter, err = UnmarshalExpression(in.Filter); err != nil {
		return nil, err
	}
	threshold, err := UnmarshalExpression(in.Threshold)
	if err != nil {
		return nil, err
	}
	if threshold != nil {
		lit, ok := threshold.(*Literal)
		if !ok {
			return nil, fmt.Errorf("threshold must be a literal, got %s", threshold.Kind())
		}
		alert.Threshold = lit
	}
	if in.ExpectedWindow != "" {
		expected, err := ParseDuration(in.ExpectedWindow)
		if err != nil {
			return nil, err
		}
		alert.ExpectedWindow = &expected
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	return alert, nil
}
