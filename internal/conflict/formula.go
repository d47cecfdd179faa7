// Package conflict parses declared arithmetic relationships between fields
// and flags rows whose stored values disagree with them, including one-hop
// cascade effects on dependent calculated fields.
package conflict

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrFormula indicates a malformed calculation rule. This is a configuration
// error and aborts the whole detection call.
var ErrFormula = eris.New("conflict: malformed formula")

type tokenKind int

const (
	tokenField tokenKind = iota
	tokenNumber
	tokenOperator
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
}

// ParsedRule is the compiled form of one calculation rule, parsed once per
// detection call.
type ParsedRule struct {
	TargetField      string
	ReferencedFields []string
	OperatorSequence []string

	expr []token
}

// ParseFormula splits "target = expr" and tokenizes the expression. The
// expression may use ASCII (+ - * /) or typographic (× ÷) operators and
// half- or full-width parentheses.
func ParseFormula(formula string) (*ParsedRule, error) {
	parts := strings.SplitN(formula, "=", 2)
	if len(parts) != 2 {
		return nil, eris.Wrapf(ErrFormula, "no '=' in %q", formula)
	}

	target := strings.TrimSpace(parts[0])
	if target == "" {
		return nil, eris.Wrapf(ErrFormula, "empty target in %q", formula)
	}

	expr, err := tokenize(parts[1])
	if err != nil {
		return nil, eris.Wrapf(err, "expression of %q", formula)
	}
	if len(expr) == 0 {
		return nil, eris.Wrapf(ErrFormula, "empty expression in %q", formula)
	}

	rule := &ParsedRule{TargetField: target, expr: expr}
	seen := make(map[string]bool)
	for _, tok := range expr {
		switch tok.kind {
		case tokenField:
			if !seen[tok.text] {
				seen[tok.text] = true
				rule.ReferencedFields = append(rule.ReferencedFields, tok.text)
			}
		case tokenOperator:
			rule.OperatorSequence = append(rule.OperatorSequence, tok.text)
		}
	}
	return rule, nil
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == '（':
			tokens = append(tokens, token{kind: tokenLParen})
			i++
		case r == ')' || r == '）':
			tokens = append(tokens, token{kind: tokenRParen})
			i++
		case r == '+' || r == '-':
			tokens = append(tokens, token{kind: tokenOperator, text: string(r)})
			i++
		case r == '*' || r == '×':
			tokens = append(tokens, token{kind: tokenOperator, text: "*"})
			i++
		case r == '/' || r == '÷':
			tokens = append(tokens, token{kind: tokenOperator, text: "/"})
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{kind: tokenField, text: string(runes[i:j])})
			i = j
		default:
			return nil, eris.Wrapf(ErrFormula, "unexpected character %q", string(r))
		}
	}
	return tokens, nil
}

// Evaluate substitutes field values and computes the expression left to
// right, respecting parentheses but applying no operator precedence (the
// declared relationships are written for that evaluation order). The defined
// flag is false when the expression divides by zero or a referenced field
// has no numeric value.
func (r *ParsedRule) Evaluate(lookup func(field string) (decimal.Decimal, bool)) (value decimal.Decimal, defined bool, err error) {
	value, rest, defined, err := evalGroup(r.expr, lookup)
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(rest) != 0 {
		return decimal.Zero, false, eris.Wrap(ErrFormula, "unbalanced parentheses")
	}
	return value, defined, nil
}

// evalGroup evaluates tokens until the group closes (a right paren or end of
// input), returning the remaining tokens after the group.
func evalGroup(tokens []token, lookup func(string) (decimal.Decimal, bool)) (decimal.Decimal, []token, bool, error) {
	acc, rest, defined, err := evalOperand(tokens, lookup)
	if err != nil {
		return decimal.Zero, nil, false, err
	}

	for len(rest) > 0 {
		if rest[0].kind == tokenRParen {
			return acc, rest, defined, nil
		}
		if rest[0].kind != tokenOperator {
			return decimal.Zero, nil, false, eris.Wrap(ErrFormula, "expected operator")
		}
		op := rest[0].text

		var (
			rhs        decimal.Decimal
			rhsDefined bool
		)
		rhs, rest, rhsDefined, err = evalOperand(rest[1:], lookup)
		if err != nil {
			return decimal.Zero, nil, false, err
		}
		if !defined || !rhsDefined {
			defined = false
			continue
		}

		switch op {
		case "+":
			acc = acc.Add(rhs)
		case "-":
			acc = acc.Sub(rhs)
		case "*":
			acc = acc.Mul(rhs)
		case "/":
			if rhs.IsZero() {
				// Division by zero is "undefined", not an error.
				defined = false
				continue
			}
			acc = acc.DivRound(rhs, 8)
		}
	}
	return acc, rest, defined, nil
}

// evalOperand evaluates one operand: a literal, a field reference, a
// parenthesized group, or a unary minus.
func evalOperand(tokens []token, lookup func(string) (decimal.Decimal, bool)) (decimal.Decimal, []token, bool, error) {
	if len(tokens) == 0 {
		return decimal.Zero, nil, false, eris.Wrap(ErrFormula, "expected operand")
	}

	switch tok := tokens[0]; tok.kind {
	case tokenNumber:
		d, err := decimal.NewFromString(tok.text)
		if err != nil {
			return decimal.Zero, nil, false, eris.Wrapf(ErrFormula, "bad number %q", tok.text)
		}
		return d, tokens[1:], true, nil

	case tokenField:
		v, ok := lookup(tok.text)
		if !ok {
			return decimal.Zero, tokens[1:], false, nil
		}
		return v, tokens[1:], true, nil

	case tokenOperator:
		if tok.text == "-" {
			v, rest, defined, err := evalOperand(tokens[1:], lookup)
			return v.Neg(), rest, defined, err
		}
		return decimal.Zero, nil, false, eris.Wrapf(ErrFormula, "unexpected operator %q", tok.text)

	case tokenLParen:
		v, rest, defined, err := evalGroup(tokens[1:], lookup)
		if err != nil {
			return decimal.Zero, nil, false, err
		}
		if len(rest) == 0 || rest[0].kind != tokenRParen {
			return decimal.Zero, nil, false, eris.Wrap(ErrFormula, "missing closing parenthesis")
		}
		return v, rest[1:], defined, nil

	default:
		return decimal.Zero, nil, false, eris.Wrap(ErrFormula, "unexpected token")
	}
}
