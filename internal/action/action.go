// Package action exposes NUT instant commands as device actions: it lists the
// actions a UPS offers, validates user-authored action configuration, reports
// parameter capabilities and runs configured actions.
package action

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/registry"
	"github.com/jamesprial/nut-mcp/internal/schema"
	"github.com/jamesprial/nut-mcp/internal/ups"
)

// Domain tags every action and config entry owned by this integration.
const Domain = "nut"

// Configuration keys of a device action.
const (
	KeyDeviceID        = "device_id"
	KeyDomain          = "domain"
	KeyType            = "type"
	KeyAlias           = "alias"
	KeyEnabled         = "enabled"
	KeyContinueOnError = "continue_on_error"
	KeyMetadata        = "metadata"
)

// ErrInvalidConfig marks configuration problems surfaced to the automation
// author. Remote command failures are never wrapped with it.
var ErrInvalidConfig = errors.New("invalid device automation config")

// Registry is the device registry and config-entry store the service reads.
type Registry interface {
	Device(id string) (registry.Device, bool)
	Entry(id string) (registry.ConfigEntry, bool)
}

// Config is a validated device action.
type Config struct {
	DeviceID        string
	Domain          string
	Type            string
	Alias           string
	Enabled         *bool
	ContinueOnError *bool
	// Params holds the command parameter, keyed by its name.
	Params map[string]any
}

// Map returns the configuration in its authored key/value form.
func (c Config) Map() map[string]any {
	m := map[string]any{
		KeyDeviceID: c.DeviceID,
		KeyDomain:   c.Domain,
		KeyType:     c.Type,
	}
	if c.Alias != "" {
		m[KeyAlias] = c.Alias
	}
	if c.Enabled != nil {
		m[KeyEnabled] = *c.Enabled
	}
	if c.ContinueOnError != nil {
		m[KeyContinueOnError] = *c.ContinueOnError
	}
	for k, v := range c.Params {
		m[k] = v
	}
	return m
}

// ActionRef is one action a device offers.
type ActionRef struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Domain   string `json:"domain"`
}

// Capabilities lists the extra fields a UI should render for an action.
type Capabilities struct {
	ExtraFields []schema.FieldSpec `json:"extra_fields,omitempty"`
}

// Context identifies the automation run that triggered an action.
type Context struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// NewContext returns a Context with a fresh id.
func NewContext(userID string) *Context {
	return &Context{ID: uuid.NewString(), UserID: userID}
}

// Service implements the device-action contract over a registry and a
// command catalog.
type Service struct {
	reg     Registry
	catalog *nut.Catalog
	base    schema.Schema
}

// NewService returns a Service. A nil catalog uses nut.DefaultCatalog.
func NewService(reg Registry, catalog *nut.Catalog) *Service {
	if reg == nil {
		panic("action: registry must not be nil")
	}
	if catalog == nil {
		catalog = nut.DefaultCatalog()
	}
	return &Service{
		reg:     reg,
		catalog: catalog,
		base:    baseSchema(catalog),
	}
}

// Catalog returns the service's command catalog.
func (s *Service) Catalog() *nut.Catalog { return s.catalog }

// ListActions returns the actions deviceID currently offers, in catalog
// order. A device that is unknown or not loaded offers none.
func (s *Service) ListActions(deviceID string) []ActionRef {
	rt, ok := s.resolveRuntime(deviceID)
	if !ok {
		return []ActionRef{}
	}

	commands := rt.Commands()
	sort.SliceStable(commands, func(i, j int) bool {
		ci, cj := s.catalog.Index(commands[i]), s.catalog.Index(commands[j])
		switch {
		case ci < 0 && cj < 0:
			return commands[i] < commands[j]
		case ci < 0:
			return false
		case cj < 0:
			return true
		default:
			return ci < cj
		}
	})

	out := make([]ActionRef, len(commands))
	for i, c := range commands {
		out[i] = ActionRef{Type: nut.ActionName(c), DeviceID: deviceID, Domain: Domain}
	}
	return out
}

// resolveRuntime finds the runtime data of the NUT entry owning deviceID. It
// reports false for unknown devices, devices without a NUT entry, and entries
// that are not loaded. It panics when the registry is inconsistent.
func (s *Service) resolveRuntime(deviceID string) (*ups.RuntimeData, bool) {
	dev, ok := s.reg.Device(deviceID)
	if !ok {
		return nil, false
	}

	for _, entryID := range dev.ConfigEntries {
		entry, ok := s.reg.Entry(entryID)
		if !ok {
			// The entry may have been removed together with the device
			// since the device was read.
			if current, still := s.reg.Device(deviceID); still && containsString(current.ConfigEntries, entryID) {
				panic(fmt.Sprintf("action: device %s references missing config entry %s", deviceID, entryID))
			}
			return nil, false
		}
		if entry.Domain != Domain {
			continue
		}
		if entry.RuntimeData == nil {
			return nil, false
		}
		rt, ok := entry.RuntimeData.(*ups.RuntimeData)
		if !ok {
			panic(fmt.Sprintf("action: config entry %s holds %T, want *ups.RuntimeData", entryID, entry.RuntimeData))
		}
		return rt, true
	}
	return nil, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
