package preprocess

import (
	"fmt"
	"strconv"
	"strings"
)

// evalCondition evaluates the argument text of #if or #elif. The defined
// operator is resolved before macro expansion and remaining identifiers
// evaluate to zero.
func (x *expander) evalCondition(args string) (bool, error) {
	resolved, err := x.resolveDefined(args)
	if err != nil {
		return false, err
	}
	expanded := x.expandText(resolved, nil, 0)
	toks, err := lexExpr(expanded)
	if err != nil {
		return false, err
	}
	if len(toks) == 0 {
		return false, fmt.Errorf("missing expression")
	}
	p := &exprParser{toks: toks}
	v, err := p.ternary()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.toks) {
		return false, fmt.Errorf("unexpected %q in expression", p.toks[p.pos].text)
	}
	return v != 0, nil
}

func (x *expander) resolveDefined(s string) (string, error) {
	if !strings.Contains(s, "defined") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		kind, end := scanToken(s, i)
		if kind != tokIdent || s[i:end] != "defined" {
			b.WriteString(s[i:end])
			i = end
			continue
		}
		j := skipSpaceAndComments(s, end)
		paren := j < len(s) && s[j] == '('
		if paren {
			j = skipSpaceAndComments(s, j+1)
		}
		if j >= len(s) {
			return "", fmt.Errorf("defined requires an identifier")
		}
		k, nameEnd := scanToken(s, j)
		if k != tokIdent {
			return "", fmt.Errorf("defined requires an identifier")
		}
		name := s[j:nameEnd]
		i = nameEnd
		if paren {
			i = skipSpaceAndComments(s, i)
			if i >= len(s) || s[i] != ')' {
				return "", fmt.Errorf("missing ')' after defined(%s", name)
			}
			i++
		}
		if x.macros.Defined(name) {
			b.WriteString(" 1 ")
		} else {
			b.WriteString(" 0 ")
		}
	}
	return b.String(), nil
}

type exprTokKind uint8

const (
	exprNum exprTokKind = iota
	exprOp
)

type exprTok struct {
	kind exprTokKind
	text string
	val  int64
}

var twoCharOps = []string{"||", "&&", "==", "!=", "<=", ">=", "<<", ">>"}

func lexExpr(s string) ([]exprTok, error) {
	var toks []exprTok
	for i := 0; i < len(s); {
		kind, end := scanToken(s, i)
		switch kind {
		case tokSpace, tokComment:
		case tokIdent:
			// Identifiers left after expansion are zero, true and false
			// are accepted for GLSL sources
			v := int64(0)
			if s[i:end] == "true" {
				v = 1
			}
			toks = append(toks, exprTok{kind: exprNum, text: s[i:end], val: v})
		case tokNumber:
			v, err := parseIntLiteral(s[i:end])
			if err != nil {
				return nil, err
			}
			toks = append(toks, exprTok{kind: exprNum, text: s[i:end], val: v})
		case tokString:
			return nil, fmt.Errorf("string literal in expression")
		default:
			op := s[i:end]
			if end < len(s) {
				for _, two := range twoCharOps {
					if strings.HasPrefix(s[i:], two) {
						op = two
						end = i + 2
						break
					}
				}
			}
			if !strings.Contains("()!~-+*/%<>&^|?:", op[:1]) && len(op) == 1 {
				return nil, fmt.Errorf("invalid token %q in expression", op)
			}
			toks = append(toks, exprTok{kind: exprOp, text: op})
		}
		i = end
	}
	return toks, nil
}

func parseIntLiteral(lit string) (int64, error) {
	s := strings.TrimRight(lit, "uUlL")
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseUint(s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		v, err = strconv.ParseUint(s[1:], 8, 64)
	default:
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q in expression", lit)
	}
	return int64(v), nil
}

type exprParser struct {
	toks []exprTok
	pos  int
}

func (p *exprParser) peekOp() string {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == exprOp {
		return p.toks[p.pos].text
	}
	return ""
}

func (p *exprParser) ternary() (int64, error) {
	cond, err := p.binary(1)
	if err != nil {
		return 0, err
	}
	if p.peekOp() != "?" {
		return cond, nil
	}
	p.pos++
	a, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if p.peekOp() != ":" {
		return 0, fmt.Errorf("expected ':' in conditional expression")
	}
	p.pos++
	b, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return a, nil
	}
	return b, nil
}

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *exprParser) binary(minPrec int) (int64, error) {
	lhs, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peekOp()
		prec, ok := binaryPrec[op]
		if !ok || prec < minPrec {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.binary(prec + 1)
		if err != nil {
			return 0, err
		}
		if lhs, err = applyBinary(op, lhs, rhs); err != nil {
			return 0, err
		}
	}
}

func applyBinary(op string, a, b int64) (int64, error) {
	bool2int := func(v bool) int64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case "||":
		return bool2int(a != 0 || b != 0), nil
	case "&&":
		return bool2int(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return bool2int(a == b), nil
	case "!=":
		return bool2int(a != b), nil
	case "<":
		return bool2int(a < b), nil
	case ">":
		return bool2int(a > b), nil
	case "<=":
		return bool2int(a <= b), nil
	case ">=":
		return bool2int(a >= b), nil
	case "<<":
		return a << uint64(b&63), nil
	case ">>":
		return a >> uint64(b&63), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/", "%":
		if b == 0 {
			return 0, fmt.Errorf("division by zero in expression")
		}
		if op == "/" {
			return a / b, nil
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func (p *exprParser) unary() (int64, error) {
	if p.pos >= len(p.toks) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	if t.kind == exprNum {
		p.pos++
		return t.val, nil
	}
	p.pos++
	switch t.text {
	case "(":
		v, err := p.ternary()
		if err != nil {
			return 0, err
		}
		if p.peekOp() != ")" {
			return 0, fmt.Errorf("missing ')' in expression")
		}
		p.pos++
		return v, nil
	case "!":
		v, err := p.unary()
		if v == 0 {
			return 1, err
		}
		return 0, err
	case "~":
		v, err := p.unary()
		return ^v, err
	case "-":
		v, err := p.unary()
		return -v, err
	case "+":
		return p.unary()
	}
	return 0, fmt.Errorf("unexpected %q in expression", t.text)
}
