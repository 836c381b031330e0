package nut

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/jamesprial/nut-mcp/internal/schema"
)

func Test_ParamType_Validate_Cases(t *testing.T) {
	delay := Constrained(Integer(), Range(0, 86400))
	mode := Constrained(String(), OneOf("quick", "deep"))

	tests := []struct {
		name    string
		typ     ParamType
		input   any
		want    any
		wantErr string
	}{
		{name: "integer from int", typ: Integer(), input: 5, want: int64(5)},
		{name: "integer from uint8", typ: Integer(), input: uint8(7), want: int64(7)},
		{name: "integer from integral float", typ: Integer(), input: float64(30), want: int64(30)},
		{name: "integer from json number", typ: Integer(), input: json.Number("42"), want: int64(42)},
		{name: "integer from max int64", typ: Integer(), input: uint64(math.MaxInt64), want: int64(math.MaxInt64)},
		{name: "integer rejects uint64 overflow", typ: Integer(), input: uint64(math.MaxUint64), wantErr: "expected int"},
		{name: "integer rejects huge float", typ: Integer(), input: 1e30, wantErr: "expected int"},
		{name: "integer rejects 2^63 float", typ: Integer(), input: float64(1 << 63), wantErr: "expected int"},
		{name: "integer rejects huge negative float", typ: Integer(), input: -1e19, wantErr: "expected int"},
		{name: "integer accepts min int64 float", typ: Integer(), input: float64(math.MinInt64), want: int64(math.MinInt64)},
		{name: "integer rejects huge json number", typ: Integer(), input: json.Number("1e19"), wantErr: "expected int"},
		{name: "integer rejects fraction", typ: Integer(), input: 1.5, wantErr: "expected int"},
		{name: "integer rejects bool", typ: Integer(), input: true, wantErr: "expected int, got bool"},
		{name: "integer rejects string", typ: Integer(), input: "5", wantErr: "expected int, got string"},
		{name: "string accepts string", typ: String(), input: "quick", want: "quick"},
		{name: "string accepts empty", typ: String(), input: "", want: ""},
		{name: "string rejects int", typ: String(), input: 5, wantErr: "expected str, got int"},
		{name: "range lower bound", typ: delay, input: 0, want: int64(0)},
		{name: "range upper bound", typ: delay, input: 86400, want: int64(86400)},
		{name: "range below", typ: delay, input: -1, wantErr: "at least 0"},
		{name: "range above", typ: delay, input: 86401, wantErr: "at most 86400"},
		{name: "one of accepts", typ: mode, input: "deep", want: "deep"},
		{name: "one of rejects", typ: mode, input: "shallow", wantErr: "one of quick, deep"},
		{
			name:  "nested constraint conjoins",
			typ:   Constrained(delay, Range(10, 100000)),
			input: 5, wantErr: "at least 10",
		},
		{
			name:  "any alternative",
			typ:   Constrained(String(), Any(OneOf("auto"), Length(3, 5))),
			input: "abcd", want: "abcd",
		},
		{
			name:  "any without match",
			typ:   Constrained(String(), Any(OneOf("auto"), Length(3, 5))),
			input: "toolong", wantErr: "no alternative matched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.Validate(tt.input)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Validate(%v) = %v, want error containing %q", tt.input, got, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%v) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%v) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func Test_ParamType_Kinds(t *testing.T) {
	c := Constrained(String(), Length(1, 0))
	if c.Kind() != KindConstrained || c.Base() != KindString {
		t.Errorf("Constrained(String) kind/base = %s/%s", c.Kind(), c.Base())
	}
	if Integer().Kind() != KindInteger || Integer().Base() != KindInteger {
		t.Error("Integer() kind/base mismatch")
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Errorf("Kind(99).String() = %q", got)
	}
}

func Test_Constrained_NilPredicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Constrained(Integer(), nil)
}

func Test_ParamType_Spec_Cases(t *testing.T) {
	i64 := func(v int64) *int64 { return &v }
	in := func(v int) *int { return &v }

	tests := []struct {
		name string
		typ  ParamType
		want schema.FieldSpec
	}{
		{name: "integer", typ: Integer(), want: schema.FieldSpec{Type: "integer"}},
		{name: "string", typ: String(), want: schema.FieldSpec{Type: "string"}},
		{
			name: "range",
			typ:  Constrained(Integer(), Range(0, 60)),
			want: schema.FieldSpec{Type: "integer", Minimum: i64(0), Maximum: i64(60)},
		},
		{
			name: "enum and length",
			typ:  Constrained(String(), All(OneOf("a", "b"), Length(1, 0))),
			want: schema.FieldSpec{Type: "string", Enum: []string{"a", "b"}, MinLength: in(1)},
		},
		{
			name: "any of",
			typ:  Constrained(String(), Any(OneOf("auto"), Length(2, 4))),
			want: schema.FieldSpec{Type: "string", AnyOf: []schema.FieldSpec{
				{Type: "string", Enum: []string{"auto"}},
				{Type: "string", MinLength: in(2), MaxLength: in(4)},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Spec(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Spec() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
