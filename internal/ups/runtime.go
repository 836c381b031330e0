package ups

import (
	"context"
	"fmt"
	"sort"

	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/safety"
)

// RuntimeData is the live state of one loaded config entry: the connection
// used to reach the UPS and the commands users may run on it.
type RuntimeData struct {
	UPSID  string
	Device *UPSDevice
	// UserAvailableCommands holds the wire names of commands that are
	// reported by the UPS, supported by the integration, and allowed by the
	// entry's command filter.
	UserAvailableCommands map[string]struct{}

	runner CommandRunner
}

// NewRuntimeData returns RuntimeData for upsID backed by runner.
func NewRuntimeData(upsID string, runner CommandRunner, device *UPSDevice, commands []string) *RuntimeData {
	set := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		set[c] = struct{}{}
	}
	return &RuntimeData{
		UPSID:                 upsID,
		Device:                device,
		UserAvailableCommands: set,
		runner:                runner,
	}
}

// HasCommand reports whether command is available to users.
func (r *RuntimeData) HasCommand(command string) bool {
	_, ok := r.UserAvailableCommands[command]
	return ok
}

// Commands returns the user-available commands sorted by name.
func (r *RuntimeData) Commands() []string {
	out := make([]string, 0, len(r.UserAvailableCommands))
	for c := range r.UserAvailableCommands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RunCommand runs command on the UPS with an optional value.
func (r *RuntimeData) RunCommand(ctx context.Context, command string, value *string) error {
	return r.runner.RunCommand(ctx, r.UPSID, command, value)
}

// Setup connects an entry to its UPS. The user-available commands are those
// the UPS reports, that catalog contains, and that filter allows. Device
// details come from monitor when it knows the UPS; monitor may be nil.
func Setup(ctx context.Context, runner CommandRunner, monitor UPSMonitor, upsID string, catalog *nut.Catalog, filter *safety.Filter) (*RuntimeData, error) {
	reported, err := runner.ListCommands(ctx, upsID)
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", upsID, err)
	}

	var supported []string
	for _, cmd := range catalog.Commands() {
		if _, ok := reported[cmd.Name]; ok {
			supported = append(supported, cmd.Name)
		}
	}

	var device *UPSDevice
	if monitor != nil {
		devices, err := monitor.GetDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("setup %s: %w", upsID, err)
		}
		for i := range devices {
			if devices[i].ID == upsID {
				device = &devices[i]
				break
			}
		}
	}

	return NewRuntimeData(upsID, runner, device, filter.Apply(supported)), nil
}
