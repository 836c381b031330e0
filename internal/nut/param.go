package nut

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jamesprial/nut-mcp/internal/schema"
	"github.com/spf13/cast"
)

// Kind discriminates the variants of ParamType.
type Kind int

const (
	KindInteger Kind = iota + 1
	KindString
	KindConstrained
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindConstrained:
		return "constrained"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParamType describes the accepted values of a command parameter. It is a
// bare integer or string, or one of those narrowed by a Predicate.
type ParamType struct {
	kind  Kind
	base  Kind
	check Predicate
}

// Integer returns a ParamType accepting whole numbers.
func Integer() ParamType { return ParamType{kind: KindInteger, base: KindInteger} }

// String returns a ParamType accepting strings.
func String() ParamType { return ParamType{kind: KindString, base: KindString} }

// Constrained narrows base with p. Constraining an already constrained type
// conjoins both predicates.
func Constrained(base ParamType, p Predicate) ParamType {
	if p == nil {
		panic("nut: constrained parameter type needs a predicate")
	}
	if base.kind == KindConstrained {
		p = All(base.check, p)
	}
	return ParamType{kind: KindConstrained, base: base.base, check: p}
}

// Kind reports the variant.
func (t ParamType) Kind() Kind { return t.kind }

// Base reports the primitive kind values are validated against.
func (t ParamType) Base() Kind { return t.base }

// Validate checks v and returns it normalised: int64 for integer-based types,
// string for string-based ones.
func (t ParamType) Validate(v any) (any, error) {
	var (
		out any
		err error
	)
	switch t.base {
	case KindInteger:
		out, err = toInteger(v)
	case KindString:
		s, ok := v.(string)
		if !ok {
			err = fmt.Errorf("expected str, got %T", v)
		}
		out = s
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", t.base)
	}
	if err != nil {
		return nil, err
	}
	if t.check != nil {
		if err := t.check.check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Spec describes the type for UI rendering.
func (t ParamType) Spec() schema.FieldSpec {
	spec := schema.FieldSpec{Type: t.base.String()}
	if t.check != nil {
		t.check.describe(&spec)
	}
	return spec
}

func toInteger(v any) (int64, error) {
	switch n := v.(type) {
	case bool:
		return 0, fmt.Errorf("expected int, got bool")
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", n.String())
		}
		return integralFloat(f)
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("expected int, got %d out of range", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("expected int, got %d out of range", n)
		}
		return int64(n), nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return cast.ToInt64E(n)
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected int, got %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("expected int, got %v out of range", f)
	}
	return int64(f), nil
}

// Predicate is a constraint on a validated parameter value.
type Predicate interface {
	check(v any) error
	describe(spec *schema.FieldSpec)
}

// Range constrains an integer to [min, max].
func Range(min, max int64) Predicate { return rangePred{min: min, max: max} }

// OneOf constrains a string to the given values.
func OneOf(values ...string) Predicate { return oneOfPred{values: values} }

// Length constrains the length of a string to [min, max]. A max of zero means
// unbounded.
func Length(min, max int) Predicate { return lengthPred{min: min, max: max} }

// All is satisfied when every predicate is.
func All(preds ...Predicate) Predicate { return allPred(preds) }

// Any is satisfied when at least one predicate is.
func Any(preds ...Predicate) Predicate { return anyPred(preds) }

type rangePred struct{ min, max int64 }

func (p rangePred) check(v any) error {
	n, ok := v.(int64)
	if !ok {
		return fmt.Errorf("range applies to integers, got %T", v)
	}
	if n < p.min {
		return fmt.Errorf("value must be at least %d", p.min)
	}
	if n > p.max {
		return fmt.Errorf("value must be at most %d", p.max)
	}
	return nil
}

func (p rangePred) describe(spec *schema.FieldSpec) {
	lo, hi := p.min, p.max
	spec.Minimum, spec.Maximum = &lo, &hi
}

type oneOfPred struct{ values []string }

func (p oneOfPred) check(v any) error {
	s, _ := v.(string)
	for _, allowed := range p.values {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("value must be one of %s", strings.Join(p.values, ", "))
}

func (p oneOfPred) describe(spec *schema.FieldSpec) {
	spec.Enum = append([]string(nil), p.values...)
}

type lengthPred struct{ min, max int }

func (p lengthPred) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("length applies to strings, got %T", v)
	}
	if len(s) < p.min {
		return fmt.Errorf("length must be at least %d", p.min)
	}
	if p.max > 0 && len(s) > p.max {
		return fmt.Errorf("length must be at most %d", p.max)
	}
	return nil
}

func (p lengthPred) describe(spec *schema.FieldSpec) {
	lo := p.min
	spec.MinLength = &lo
	if p.max > 0 {
		hi := p.max
		spec.MaxLength = &hi
	}
}

type allPred []Predicate

func (p allPred) check(v any) error {
	for _, pred := range p {
		if err := pred.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (p allPred) describe(spec *schema.FieldSpec) {
	for _, pred := range p {
		pred.describe(spec)
	}
}

type anyPred []Predicate

func (p anyPred) check(v any) error {
	if len(p) == 0 {
		return nil
	}
	var errs []error
	for _, pred := range p {
		err := pred.check(v)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("no alternative matched: %w", errors.Join(errs...))
}

func (p anyPred) describe(spec *schema.FieldSpec) {
	for _, pred := range p {
		alt := schema.FieldSpec{Type: spec.Type}
		pred.describe(&alt)
		spec.AnyOf = append(spec.AnyOf, alt)
	}
}
