package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// conditionExpr translates a structured condition into CEL source. The
// typing split is decided here, at compile time: ordering operators (and
// equality against a numeric comparison value) take the guarded numeric
// path, where a missing or non-numeric field makes the condition false;
// string operators coerce both operands to string.
func conditionExpr(c domain.Condition) (string, error) {
	if c.Field == "" {
		return "", fmt.Errorf("condition field is required")
	}
	field := strconv.Quote(c.Field)

	switch c.Operator {
	case domain.OpGT, domain.OpLT, domain.OpGTE, domain.OpLTE:
		if ts, ok := c.Value.Time(); ok {
			return dateExpr(field, string(c.Operator), ts), nil
		}
		num, ok := c.Value.Num()
		if !ok {
			return "", fmt.Errorf("operator %q requires a numeric or date comparison value", c.Operator)
		}
		return numericExpr(field, string(c.Operator), num), nil

	case domain.OpEQ, domain.OpNEQ:
		if num, ok := c.Value.Num(); ok {
			return numericExpr(field, string(c.Operator), num), nil
		}
		if ts, ok := c.Value.Time(); ok {
			return dateExpr(field, string(c.Operator), ts), nil
		}
		return stringExpr(field, string(c.Operator), valueAsString(c.Value)), nil

	case domain.OpIncludes:
		return stringCallExpr(field, "contains", valueAsString(c.Value)), nil
	case domain.OpStartsWith:
		return stringCallExpr(field, "startsWith", valueAsString(c.Value)), nil
	case domain.OpEndsWith:
		return stringCallExpr(field, "endsWith", valueAsString(c.Value)), nil

	default:
		return "", fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// numericExpr guards on the field's runtime type so a non-numeric operand
// makes the whole condition false rather than an evaluation error.
func numericExpr(field, op string, value float64) string {
	return fmt.Sprintf(
		"%s in applicant && (type(applicant[%s]) == int || type(applicant[%s]) == double) && double(applicant[%s]) %s %s",
		field, field, field, field, op, doubleLiteral(value),
	)
}

// dateExpr compares against a timestamp literal. A mistyped field yields an
// evaluation error, which the engine records on that rule's result.
func dateExpr(field, op string, ts time.Time) string {
	return fmt.Sprintf(
		"%s in applicant && applicant[%s] %s timestamp(%s)",
		field, field, op, strconv.Quote(ts.UTC().Format(time.RFC3339)),
	)
}

func stringExpr(field, op, value string) string {
	return fmt.Sprintf(
		"%s in applicant && string(applicant[%s]) %s %s",
		field, field, op, strconv.Quote(value),
	)
}

func stringCallExpr(field, fn, value string) string {
	return fmt.Sprintf(
		"%s in applicant && string(applicant[%s]).%s(%s)",
		field, field, fn, strconv.Quote(value),
	)
}

// doubleLiteral renders a float as a CEL double literal.
func doubleLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// valueAsString coerces a comparison value to its string form for the
// string operators.
func valueAsString(v domain.Value) string {
	switch v.Kind() {
	case domain.KindText:
		s, _ := v.Str()
		return s
	case domain.KindNumber:
		n, _ := v.Num()
		return strconv.FormatFloat(n, 'g', -1, 64)
	case domain.KindBool:
		b, _ := v.IsTrue()
		return strconv.FormatBool(b)
	case domain.KindDate:
		t, _ := v.Time()
		return t.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}
