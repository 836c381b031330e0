// Package schema validates loosely typed configuration maps against a set of
// keyed field validators.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Validator checks a single value and returns it, possibly normalised.
type Validator func(v any) (any, error)

// FieldSpec describes a field for UI rendering. It is the JSON shape returned
// by capability reporting.
type FieldSpec struct {
	Name      string      `json:"name,omitempty"`
	Type      string      `json:"type"`
	Required  bool        `json:"required"`
	Minimum   *int64      `json:"minimum,omitempty"`
	Maximum   *int64      `json:"maximum,omitempty"`
	Enum      []string    `json:"enum,omitempty"`
	MinLength *int        `json:"min_length,omitempty"`
	MaxLength *int        `json:"max_length,omitempty"`
	AnyOf     []FieldSpec `json:"any_of,omitempty"`
}

// Field is one key of a Schema.
type Field struct {
	Key      string
	Required bool
	// Remove accepts the key and drops it from the validated output.
	Remove   bool
	Validate Validator
	Spec     FieldSpec
}

// FieldSpec returns the field's description with its name and requiredness set.
func (f Field) FieldSpec() FieldSpec {
	spec := f.Spec
	spec.Name = f.Key
	spec.Required = f.Required
	return spec
}

// Schema is an immutable set of fields. Keys not declared by a field are
// rejected.
type Schema struct {
	fields map[string]Field
}

// New returns a Schema holding fields.
func New(fields ...Field) Schema {
	return Schema{}.Extend(fields...)
}

// Extend returns a new Schema with fields merged over the receiver's. The
// receiver is left unchanged.
func (s Schema) Extend(fields ...Field) Schema {
	merged := make(map[string]Field, len(s.fields)+len(fields))
	for k, f := range s.fields {
		merged[k] = f
	}
	for _, f := range fields {
		merged[f.Key] = f
	}
	return Schema{fields: merged}
}

// Fields returns the schema's fields sorted by key.
func (s Schema) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Validate checks raw against the schema and returns the validated copy.
// Every problem found is reported in the returned *Error.
func (s Schema) Validate(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	var problems []Invalid

	for key, f := range s.fields {
		v, present := raw[key]
		if !present {
			if f.Required {
				problems = append(problems, Invalid{Path: key, Msg: "required key not provided"})
			}
			continue
		}
		if f.Remove {
			continue
		}
		if f.Validate == nil {
			out[key] = v
			continue
		}
		nv, err := f.Validate(v)
		if err != nil {
			problems = append(problems, Invalid{Path: key, Msg: err.Error()})
			continue
		}
		out[key] = nv
	}

	for key := range raw {
		if _, known := s.fields[key]; !known {
			problems = append(problems, Invalid{Path: key, Msg: "extra keys not allowed"})
		}
	}

	if len(problems) > 0 {
		sort.Slice(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
		return nil, &Error{Problems: problems}
	}
	return out, nil
}

// Invalid is a single validation failure.
type Invalid struct {
	Path string `json:"path"`
	Msg  string `json:"message"`
}

func (i Invalid) String() string {
	return fmt.Sprintf("%s @ data['%s']", i.Msg, i.Path)
}

// Error aggregates the failures of one Validate call.
type Error struct {
	Problems []Invalid
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return strings.Join(msgs, "; ")
}

// Str accepts strings only.
func Str(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected str, got %T", v)
	}
	return s, nil
}

// Bool accepts booleans only.
func Bool(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

// Dict accepts string-keyed maps.
func Dict(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %T", v)
	}
	return m, nil
}

// In returns a Validator accepting one of values.
func In(values ...string) Validator {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected str, got %T", v)
		}
		if _, ok := set[s]; !ok {
			return nil, fmt.Errorf("value must be one of %d known options", len(values))
		}
		return s, nil
	}
}
