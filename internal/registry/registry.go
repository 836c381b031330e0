// Package registry holds the devices and config entries known to the server.
// It plays the host platform's device registry and config-entry store.
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// EntryState is the lifecycle state of a config entry.
type EntryState string

const (
	StateNotLoaded  EntryState = "not_loaded"
	StateLoaded     EntryState = "loaded"
	StateSetupRetry EntryState = "setup_retry"
	StateSetupError EntryState = "setup_error"
)

// Device is a physical device known to the registry.
type Device struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	ConfigEntries []string `json:"config_entries"`
}

// ConfigEntry is one configured integration instance. RuntimeData is set
// only while the entry is loaded.
type ConfigEntry struct {
	ID          string     `json:"id"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	State       EntryState `json:"state"`
	Reason      string     `json:"reason,omitempty"`
	RuntimeData any        `json:"-"`
}

// deviceNamespace seeds deterministic device ids.
var deviceNamespace = uuid.MustParse("7f0c4f55-3a0e-4a83-9a34-6d9f1e0c2b71")

// DeviceID returns the stable device id for identifier within domain.
func DeviceID(domain, identifier string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(domain+":"+identifier)).String()
}

// Registry stores devices and config entries. It is safe for concurrent use.
// Lookups return copies, so callers never share state with the registry.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
	entries map[string]ConfigEntry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]Device),
		entries: make(map[string]ConfigEntry),
	}
}

// Device returns the device with the given id.
func (r *Registry) Device(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return copyDevice(d), true
}

// Devices returns every device sorted by name, then id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, copyDevice(d))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpsertDevice adds or replaces a device.
func (r *Registry) UpsertDevice(d Device) {
	r.mu.Lock()
	r.devices[d.ID] = copyDevice(d)
	r.mu.Unlock()
}

// RemoveDevice deletes a device.
func (r *Registry) RemoveDevice(id string) {
	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
}

// Entry returns the config entry with the given id.
func (r *Registry) Entry(id string) (ConfigEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Entries returns every config entry sorted by id.
func (r *Registry) Entries() []ConfigEntry {
	r.mu.RLock()
	out := make([]ConfigEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpsertEntry adds or replaces a config entry.
func (r *Registry) UpsertEntry(e ConfigEntry) {
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
}

// SetEntryState moves an entry to state with the given runtime data and
// reason. It reports false when the entry no longer exists.
func (r *Registry) SetEntryState(id string, state EntryState, runtimeData any, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.State = state
	e.RuntimeData = runtimeData
	e.Reason = reason
	r.entries[id] = e
	return true
}

// RemoveEntry deletes an entry and detaches it from its devices. Devices left
// without any entry are removed as well.
func (r *Registry) RemoveEntry(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	for devID, d := range r.devices {
		var kept []string
		owned := false
		for _, entryID := range d.ConfigEntries {
			if entryID == id {
				owned = true
				continue
			}
			kept = append(kept, entryID)
		}
		if !owned {
			continue
		}
		if len(kept) == 0 {
			delete(r.devices, devID)
			continue
		}
		d.ConfigEntries = kept
		r.devices[devID] = d
	}
}

func copyDevice(d Device) Device {
	d.ConfigEntries = append([]string(nil), d.ConfigEntries...)
	return d
}
