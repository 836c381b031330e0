// Package entry turns configured UPS entries into loaded config entries. Each
// entry is set up in the background and retried with exponential backoff
// until its UPS answers.
package entry

import (
	"context"
	"errors"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jamesprial/nut-mcp/internal/config"
	"github.com/jamesprial/nut-mcp/internal/graphql"
	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/registry"
	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/ups"
)

// Domain is the registry domain of every entry the manager owns.
const Domain = "nut"

const maxRetryInterval = 5 * time.Minute

// Manager keeps the registry in step with the configured entries.
type Manager struct {
	reg     *registry.Registry
	runner  ups.CommandRunner
	monitor ups.UPSMonitor
	catalog *nut.Catalog

	// newBackOff returns the retry policy for one setup run.
	newBackOff func() backoff.BackOff
	// onLoaded, when set, is called after an entry finishes loading.
	onLoaded func(entryID, deviceID string)

	mu      sync.Mutex
	running map[string]*job
}

type job struct {
	cfg    config.EntryConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackOff overrides the retry policy used while an entry cannot be set up.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = f }
}

// WithLoadedHook registers f to be called whenever an entry finishes loading.
func WithLoadedHook(f func(entryID, deviceID string)) Option {
	return func(m *Manager) { m.onLoaded = f }
}

// NewManager returns a Manager that sets entries up with runner. monitor is
// used for device details and may be nil. A nil catalog uses
// nut.DefaultCatalog.
func NewManager(reg *registry.Registry, runner ups.CommandRunner, monitor ups.UPSMonitor, catalog *nut.Catalog, opts ...Option) *Manager {
	if reg == nil || runner == nil {
		panic("entry: registry and runner must not be nil")
	}
	if catalog == nil {
		catalog = nut.DefaultCatalog()
	}
	m := &Manager{
		reg:     reg,
		runner:  runner,
		monitor: monitor,
		catalog: catalog,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = maxRetryInterval
			return b
		},
		running: make(map[string]*job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DeviceID returns the registry device id of the UPS behind an entry.
func DeviceID(upsID string) string {
	return registry.DeviceID(Domain, upsID)
}

// Sync makes the registry match entries. Entries that disappeared are
// unloaded and removed, changed entries are reloaded, and new entries are
// registered in the setup_retry state and set up in the background. Setup
// goroutines stop when ctx is cancelled.
func (m *Manager) Sync(ctx context.Context, entries []config.EntryConfig) {
	want := make(map[string]config.EntryConfig, len(entries))
	for _, e := range entries {
		want[e.ID] = e
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, j := range m.running {
		if cfg, ok := want[id]; ok && reflect.DeepEqual(cfg, j.cfg) {
			continue
		}
		m.stop(id, j)
	}

	for _, e := range entries {
		if _, ok := m.running[e.ID]; ok {
			continue
		}
		m.start(ctx, e)
	}
}

// Close unloads every entry and waits for setup goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, j := range m.running {
		m.stop(id, j)
	}
}

// stop must be called with m.mu held.
func (m *Manager) stop(id string, j *job) {
	j.cancel()
	<-j.done
	delete(m.running, id)
	m.reg.RemoveEntry(id)
	log.Printf("unloaded entry %q", id)
}

// start must be called with m.mu held.
func (m *Manager) start(ctx context.Context, e config.EntryConfig) {
	title := e.Title
	if title == "" {
		title = e.UPSID
	}
	deviceID := DeviceID(e.UPSID)

	m.reg.UpsertEntry(registry.ConfigEntry{
		ID:     e.ID,
		Domain: Domain,
		Title:  title,
		State:  registry.StateSetupRetry,
	})
	dev, ok := m.reg.Device(deviceID)
	if !ok {
		dev = registry.Device{ID: deviceID, Name: title}
	}
	dev.ConfigEntries = appendUnique(dev.ConfigEntries, e.ID)
	m.reg.UpsertDevice(dev)

	jctx, cancel := context.WithCancel(ctx)
	j := &job{cfg: e, cancel: cancel, done: make(chan struct{})}
	m.running[e.ID] = j

	go func() {
		defer close(j.done)
		m.setup(jctx, e, deviceID)
	}()
}

func (m *Manager) setup(ctx context.Context, e config.EntryConfig, deviceID string) {
	filter := safety.NewFilter(e.Commands.Allowlist, e.Commands.Denylist)

	op := func() (*ups.RuntimeData, error) {
		rt, err := ups.Setup(ctx, m.runner, m.monitor, e.UPSID, m.catalog, filter)
		if err == nil {
			return rt, nil
		}
		var status *graphql.StatusError
		if errors.Is(err, graphql.ErrUnauthorized) || (errors.As(err, &status) && !status.Temporary()) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, next time.Duration) {
		m.reg.SetEntryState(e.ID, registry.StateSetupRetry, nil, err.Error())
		log.Printf("entry %q not ready, retrying in %s: %v", e.ID, next.Round(time.Second), err)
	}

	rt, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithNotify(notify),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.reg.SetEntryState(e.ID, registry.StateSetupError, nil, err.Error())
		log.Printf("entry %q setup failed: %v", e.ID, err)
		return
	}

	if rt.Device != nil {
		if dev, ok := m.reg.Device(deviceID); ok {
			if rt.Device.Name != "" {
				dev.Name = rt.Device.Name
			}
			dev.Manufacturer = rt.Device.Manufacturer
			dev.Model = rt.Device.Model
			m.reg.UpsertDevice(dev)
		}
	}
	if !m.reg.SetEntryState(e.ID, registry.StateLoaded, rt, "") {
		return
	}
	log.Printf("loaded entry %q (ups %s, %d commands)", e.ID, e.UPSID, len(rt.UserAvailableCommands))
	if m.onLoaded != nil {
		m.onLoaded(e.ID, deviceID)
	}
}

// States returns the current state of every managed entry keyed by id.
func (m *Manager) States() map[string]registry.EntryState {
	out := make(map[string]registry.EntryState)
	for _, e := range m.reg.Entries() {
		if e.Domain == Domain {
			out[e.ID] = e.State
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
