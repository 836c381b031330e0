// Package ups provides UPS status monitoring and the runtime connection used
// to run NUT instant commands through the bridge API.
package ups

import "context"

// UPSDevice represents a single UPS as reported by the bridge.
type UPSDevice struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model"`
	Status       string     `json:"status"`
	Battery      *Battery   `json:"battery"`
	Power        *PowerInfo `json:"power"`
}

// Battery contains battery charge and runtime information.
type Battery struct {
	Charge  *float64 `json:"charge"`
	Runtime *int     `json:"runtime"` // seconds
}

// PowerInfo contains power input/output and load information.
type PowerInfo struct {
	InputVoltage  *float64 `json:"inputVoltage"`
	OutputVoltage *float64 `json:"outputVoltage"`
	Load          *float64 `json:"load"`
}

// UPSMonitor reports the UPS devices known to the bridge.
type UPSMonitor interface {
	GetDevices(ctx context.Context) ([]UPSDevice, error)
}

// CommandRunner lists and runs NUT instant commands on a UPS.
type CommandRunner interface {
	// ListCommands returns the commands the UPS reports, keyed by name with
	// their descriptions.
	ListCommands(ctx context.Context, upsID string) (map[string]string, error)
	// RunCommand runs command with an optional value.
	RunCommand(ctx context.Context, upsID, command string, value *string) error
}
