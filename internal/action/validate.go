package action

import (
	"fmt"

	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/schema"
)

func baseSchema(catalog *nut.Catalog) schema.Schema {
	return schema.New(
		schema.Field{Key: KeyDeviceID, Required: true, Validate: schema.Str, Spec: schema.FieldSpec{Type: "string"}},
		schema.Field{Key: KeyDomain, Required: true, Validate: schema.In(Domain), Spec: schema.FieldSpec{Type: "string", Enum: []string{Domain}}},
		schema.Field{Key: KeyType, Required: true, Validate: schema.In(catalog.ActionTypes()...), Spec: schema.FieldSpec{Type: "string", Enum: catalog.ActionTypes()}},
		schema.Field{Key: KeyAlias, Validate: schema.Str, Spec: schema.FieldSpec{Type: "string"}},
		schema.Field{Key: KeyEnabled, Validate: schema.Bool, Spec: schema.FieldSpec{Type: "boolean"}},
		schema.Field{Key: KeyContinueOnError, Validate: schema.Bool, Spec: schema.FieldSpec{Type: "boolean"}},
		schema.Field{Key: KeyMetadata, Remove: true},
	)
}

func paramField(p *nut.Parameter) schema.Field {
	return schema.Field{
		Key:      p.Name,
		Validate: p.Type.Validate,
		Spec:     p.Type.Spec(),
	}
}

// Schema returns the schema a configuration of actionType is validated
// against: the base device-action schema, extended with the command's
// optional parameter when it has one.
func (s *Service) Schema(actionType string) schema.Schema {
	if p, ok := s.catalog.ParameterFor(actionType); ok {
		return s.base.Extend(paramField(p))
	}
	return s.base
}

// ValidateConfig checks a user-authored action configuration. Failures wrap
// ErrInvalidConfig and, for schema violations, a *schema.Error.
func (s *Service) ValidateConfig(raw map[string]any) (Config, error) {
	actionType, _ := raw[KeyType].(string)

	out, err := s.Schema(actionType).Validate(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := Config{
		DeviceID: out[KeyDeviceID].(string),
		Domain:   out[KeyDomain].(string),
		Type:     out[KeyType].(string),
		Params:   map[string]any{},
	}
	if alias, ok := out[KeyAlias].(string); ok {
		cfg.Alias = alias
	}
	if enabled, ok := out[KeyEnabled].(bool); ok {
		cfg.Enabled = &enabled
	}
	if coe, ok := out[KeyContinueOnError].(bool); ok {
		cfg.ContinueOnError = &coe
	}
	if p, ok := s.catalog.ParameterFor(cfg.Type); ok {
		if v, present := out[p.Name]; present {
			cfg.Params[p.Name] = v
		}
	}
	return cfg, nil
}

// Capabilities returns the extra fields of actionType: its parameter, if the
// command has one, otherwise nothing.
func (s *Service) Capabilities(actionType string) Capabilities {
	p, ok := s.catalog.ParameterFor(actionType)
	if !ok {
		return Capabilities{}
	}
	return Capabilities{ExtraFields: []schema.FieldSpec{paramField(p).FieldSpec()}}
}
