package action

import (
	"context"
	"fmt"

	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/spf13/cast"
)

// CallAction runs the instant command behind cfg on its device. variables and
// actx are accepted for the automation contract but not consulted.
//
// The command parameter is forwarded only when the command declares one and
// cfg supplies a non-empty value for it. An unresolvable device or a command
// the device does not offer wraps ErrInvalidConfig; errors from the UPS are
// returned unchanged.
func (s *Service) CallAction(ctx context.Context, cfg Config, variables map[string]any, actx *Context) error {
	command := nut.CommandName(cfg.Type)

	rt, ok := s.resolveRuntime(cfg.DeviceID)
	if !ok {
		return fmt.Errorf("%w: Unable to find a NUT device with id %s", ErrInvalidConfig, cfg.DeviceID)
	}
	if !rt.HasCommand(command) {
		return fmt.Errorf("%w: command %s is not available on NUT device %s", ErrInvalidConfig, command, cfg.DeviceID)
	}

	value, err := s.paramValue(cfg)
	if err != nil {
		return err
	}
	return rt.RunCommand(ctx, command, value)
}

func (s *Service) paramValue(cfg Config) (*string, error) {
	p, ok := s.catalog.ParameterFor(cfg.Type)
	if !ok {
		return nil, nil
	}
	v, present := cfg.Params[p.Name]
	if !present || v == nil {
		return nil, nil
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return nil, fmt.Errorf("%w: parameter %s: %w", ErrInvalidConfig, p.Name, err)
	}
	if str == "" {
		return nil, nil
	}
	return &str, nil
}
