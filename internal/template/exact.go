package template

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/nikolalohinski/gonja/exec"
	"github.com/nikolalohinski/gonja/tokens"
)

// emitFilter is piped behind every {{ ... }} expression at compile time
const emitFilter = "emit"

// payloadJSON is the builtin tojson encoder without HTML escaping:
// sorted keys, shortest round-trip floats.
var payloadJSON = jsoniter.Config{SortMapKeys: true}.Froze()

// ErrNonFinite is returned for NaN or infinite numbers, which have no JSON form
var ErrNonFinite = errors.New("numeric parameter is not finite")

// registerExactFilters installs the output filter and replaces the builtin
// filters whose number formatting is lossy (11 fractional digits).
func registerExactFilters(fs *exec.FilterSet) {
	(*fs)[emitFilter] = filterEmit
	(*fs)["tojson"] = filterToJSON
	(*fs)["join"] = filterJoin
	(*fs)["string"] = filterString
}

// filterEmit prints scalars exactly and collections as JSON
func filterEmit(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() || in.IsNil() || in.IsString() {
		return in
	}
	out, err := exactString(in)
	if err != nil {
		return exec.AsValue(err)
	}
	return exec.AsValue(out)
}

func filterToJSON(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.Expect(0, []*exec.KwArg{{Name: "indent", Default: nil}})
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'tojson': %s", p.Error()))
	}

	indent := 0
	if v := p.KwArgs["indent"]; !v.IsNil() {
		if !v.IsInteger() {
			return exec.AsValue(fmt.Errorf("tojson: indent must be an integer"))
		}
		indent = v.Integer()
	}

	out, err := encodeJSON(in, indent)
	if err != nil {
		return exec.AsValue(err)
	}
	return exec.AsSafeValue(out)
}

func filterJoin(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.Expect(0, []*exec.KwArg{{Name: "d", Default: ""}, {Name: "attribute", Default: nil}})
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'join': %s", p.Error()))
	}
	if !in.CanSlice() {
		return in
	}

	parts := make([]string, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		item := in.Index(i)
		if item.IsString() {
			parts = append(parts, item.String())
			continue
		}
		s, err := exactString(item)
		if err != nil {
			return exec.AsValue(err)
		}
		parts = append(parts, s)
	}
	return exec.AsValue(strings.Join(parts, p.KwArgs["d"].String()))
}

func filterString(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() || in.IsString() {
		return in
	}
	if p := params.ExpectNothing(); p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'string': %s", p.Error()))
	}
	if in.IsNil() {
		return exec.AsValue("")
	}
	out, err := exactString(in)
	if err != nil {
		return exec.AsValue(err)
	}
	return exec.AsValue(out)
}

// exactString renders a non-string value without losing digits.
// Bools keep the Jinja spelling (True/False) when printed on their own.
func exactString(v *exec.Value) (string, error) {
	switch {
	case v.IsFloat():
		return formatFloat(v.Float())
	case v.IsList(), v.IsDict():
		return encodeJSON(v, 0)
	default:
		return v.String(), nil
	}
}

// formatFloat prints the shortest decimal that parses back to f
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

// encodeJSON marshals a template value with payloadJSON
func encodeJSON(v *exec.Value, indent int) (string, error) {
	plain := v.ToGoSimpleType(false)
	if err, ok := plain.(error); ok {
		return "", err
	}

	var (
		b   []byte
		err error
	)
	if indent > 0 {
		b, err = payloadJSON.MarshalIndent(plain, "", strings.Repeat(" ", indent))
	} else {
		b, err = payloadJSON.Marshal(plain)
	}
	if err != nil {
		// JSON은 NaN/Inf를 표현할 수 없음
		return "", fmt.Errorf("%w: %v", ErrNonFinite, err)
	}
	return string(b), nil
}

// lex collects the whole token stream of a template body
func lex(body string) []*tokens.Token {
	l := tokens.NewLexer(body)
	go l.Run()

	var toks []*tokens.Token
	for tok := range l.Tokens {
		toks = append(toks, tok)
	}
	return toks
}

// pipeOutputs rewrites every {{ expr }} into {{ (expr)|emit }}.
// For {{ a if c else b }} both branches are wrapped and the condition is kept.
// Unterminated spans are left alone for the parser to report.
func pipeOutputs(toks []*tokens.Token) []*tokens.Token {
	out := make([]*tokens.Token, 0, len(toks)+8)

	for i := 0; i < len(toks); i++ {
		if toks[i].Type != tokens.VariableBegin {
			out = append(out, toks[i])
			continue
		}

		end := i + 1
		for end < len(toks) && toks[end].Type != tokens.VariableEnd &&
			toks[end].Type != tokens.EOF && toks[end].Type != tokens.Error {
			end++
		}
		if end == len(toks) || toks[end].Type != tokens.VariableEnd {
			return append(out, toks[i:]...)
		}

		out = append(out, toks[i])
		out = append(out, wrapOutput(toks[i+1:end], toks[i])...)
		out = append(out, toks[end])
		i = end
	}

	return out
}

// wrapOutput splits an output span on its top-level if/else keywords
func wrapOutput(span []*tokens.Token, at *tokens.Token) []*tokens.Token {
	ifAt, elseAt := -1, -1
	depth := 0
	for i, tok := range span {
		switch tok.Type {
		case tokens.Lparen, tokens.Lbracket, tokens.Lbrace:
			depth++
		case tokens.Rparen, tokens.Rbracket, tokens.Rbrace:
			depth--
		case tokens.Name:
			if depth != 0 {
				continue
			}
			if tok.Val == "if" && ifAt < 0 {
				ifAt = i
			} else if tok.Val == "else" && ifAt >= 0 && elseAt < 0 {
				elseAt = i
			}
		}
	}

	if ifAt < 0 {
		return wrapExpr(span, at)
	}

	out := wrapExpr(span[:ifAt], at)
	if elseAt < 0 {
		return append(out, span[ifAt:]...)
	}
	out = append(out, span[ifAt:elseAt+1]...)
	return append(out, wrapExpr(span[elseAt+1:], at)...)
}

func wrapExpr(expr []*tokens.Token, at *tokens.Token) []*tokens.Token {
	if blank(expr) {
		return expr
	}

	out := make([]*tokens.Token, 0, len(expr)+4)
	out = append(out, synth(tokens.Lparen, "(", at))
	out = append(out, expr...)
	out = append(out,
		synth(tokens.Rparen, ")", at),
		synth(tokens.Pipe, "|", at),
		synth(tokens.Name, emitFilter, at),
	)
	return out
}

func blank(toks []*tokens.Token) bool {
	for _, tok := range toks {
		if tok.Type != tokens.Whitespace {
			return false
		}
	}
	return true
}

// synth makes a token positioned at an existing one, for error messages
func synth(typ tokens.Type, val string, at *tokens.Token) *tokens.Token {
	return &tokens.Token{Type: typ, Val: val, Pos: at.Pos, Line: at.Line, Col: at.Col}
}
