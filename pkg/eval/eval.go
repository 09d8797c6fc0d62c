// Package eval evaluates `when` guard expressions against a per-host
// variable environment.
//
// Supported grammar, loosest binding first:
//
//	expr   := and ("or" and)*
//	and    := not ("and" not)*
//	not    := "not" not | cmp
//	cmp    := term (("==" | "!=" | "<" | "<=" | ">" | ">=") term
//	        | "in" term
//	        | "is" ["not"] "defined")?
//	term   := string | number | "true" | "false" | ident | "(" expr ")"
//	ident  := name ("." name)*
//
// A reference to an undefined variable is a GuardError, not a silent
// false; `is defined` / `is not defined` are the sanctioned way to probe
// for presence.
package eval

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// When parses and evaluates expr against vars. An empty expression is true.
func When(expr string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	n, err := Parse(expr)
	if err != nil {
		return false, err
	}
	v, err := n.eval(expr, vars)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Parse compiles expr without evaluating it, for preflight and linting.
func Parse(expr string) (Node, error) {
	toks, err := scan(expr)
	if err != nil {
		return nil, guardErr(expr, err.Error())
	}
	p := &parser{src: expr, toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, guardErr(expr, fmt.Sprintf("unexpected %q", p.toks[p.pos].text))
	}
	return n, nil
}

// Node is a compiled guard expression.
type Node interface {
	eval(src string, vars map[string]any) (any, error)
}

func guardErr(expr, reason string) error {
	return &errs.GuardError{Expr: expr, Reason: reason}
}

// --- scanner ---

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokNumber
	tokOp    // == != < <= > >= ( )
	tokWord  // not and or in is defined true false
)

type token struct {
	kind tokKind
	text string
}

func scan(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			toks = append(toks, token{tokOp, string(r)})
			i++
		case r == '\'' || r == '"':
			q := r
			j := i + 1
			var sb strings.Builder
			for j < len(rs) && rs[j] != q {
				sb.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, token{tokString, sb.String()})
			i = j + 1
		case strings.ContainsRune("=!<>", r):
			j := i + 1
			if j < len(rs) && rs[j] == '=' {
				j++
			}
			op := string(rs[i:j])
			switch op {
			case "==", "!=", "<", "<=", ">", ">=":
				toks = append(toks, token{tokOp, op})
			default:
				return nil, fmt.Errorf("bad operator %q", op)
			}
			i = j
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.') {
				j++
			}
			word := string(rs[i:j])
			switch word {
			case "not", "and", "or", "in", "is", "defined", "true", "false", "True", "False":
				toks = append(toks, token{tokWord, strings.ToLower(word)})
			default:
				toks = append(toks, token{tokIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}
	return toks, nil
}

// --- parser ---

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) accept(kind tokKind, text string) bool {
	if t, ok := p.peek(); ok && t.kind == kind && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokWord, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(tokWord, "and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.accept(tokWord, "not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		switch {
		case t.kind == tokOp && t.text != "(" && t.text != ")":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return &cmpNode{op: t.text, left: left, right: right}, nil
		case t.kind == tokWord && t.text == "in":
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return &inNode{needle: left, haystack: right}, nil
		case t.kind == tokWord && t.text == "is":
			p.pos++
			negated := p.accept(tokWord, "not")
			if !p.accept(tokWord, "defined") {
				return nil, guardErr(p.src, "expected 'defined' after 'is'")
			}
			id, ok := left.(*identNode)
			if !ok {
				return nil, guardErr(p.src, "'is defined' applies to a variable")
			}
			return &definedNode{path: id.path, negated: negated}, nil
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, guardErr(p.src, "unexpected end of expression")
	}
	switch t.kind {
	case tokString:
		p.pos++
		return &litNode{t.text}, nil
	case tokNumber:
		p.pos++
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, guardErr(p.src, "bad number "+t.text)
			}
			return &litNode{f}, nil
		}
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, guardErr(p.src, "bad number "+t.text)
		}
		return &litNode{n}, nil
	case tokWord:
		switch t.text {
		case "true":
			p.pos++
			return &litNode{true}, nil
		case "false":
			p.pos++
			return &litNode{false}, nil
		}
		return nil, guardErr(p.src, fmt.Sprintf("unexpected %q", t.text))
	case tokIdent:
		p.pos++
		return &identNode{t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.pos++
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.accept(tokOp, ")") {
				return nil, guardErr(p.src, "missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, guardErr(p.src, fmt.Sprintf("unexpected %q", t.text))
}

// --- nodes ---

type litNode struct{ val any }

func (n *litNode) eval(string, map[string]any) (any, error) { return n.val, nil }

type identNode struct{ path string }

func (n *identNode) eval(src string, vars map[string]any) (any, error) {
	v, ok := lookup(vars, n.path)
	if !ok {
		return nil, guardErr(src, fmt.Sprintf("undefined variable %q", n.path))
	}
	return v, nil
}

type definedNode struct {
	path    string
	negated bool
}

func (n *definedNode) eval(_ string, vars map[string]any) (any, error) {
	_, ok := lookup(vars, n.path)
	if n.negated {
		return !ok, nil
	}
	return ok, nil
}

type notNode struct{ inner Node }

func (n *notNode) eval(src string, vars map[string]any) (any, error) {
	v, err := n.inner.eval(src, vars)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type logicalNode struct {
	op          string
	left, right Node
}

func (n *logicalNode) eval(src string, vars map[string]any) (any, error) {
	l, err := n.left.eval(src, vars)
	if err != nil {
		return nil, err
	}
	if n.op == "and" && !truthy(l) {
		return false, nil
	}
	if n.op == "or" && truthy(l) {
		return true, nil
	}
	r, err := n.right.eval(src, vars)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type cmpNode struct {
	op          string
	left, right Node
}

func (n *cmpNode) eval(src string, vars map[string]any) (any, error) {
	l, err := n.left.eval(src, vars)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(src, vars)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch n.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, rs := fmt.Sprintf("%v", l), fmt.Sprintf("%v", r)
	switch n.op {
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	}
	return nil, guardErr(src, "bad comparison operator "+n.op)
}

type inNode struct{ needle, haystack Node }

func (n *inNode) eval(src string, vars map[string]any) (any, error) {
	needle, err := n.needle.eval(src, vars)
	if err != nil {
		return nil, err
	}
	hay, err := n.haystack.eval(src, vars)
	if err != nil {
		return nil, err
	}
	switch h := hay.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle)), nil
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := h[fmt.Sprintf("%v", needle)]
		return ok, nil
	}
	return nil, guardErr(src, "'in' needs a string, list or mapping on the right")
}

// --- helpers ---

func lookup(vars map[string]any, path string) (any, bool) {
	cur := any(vars)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
