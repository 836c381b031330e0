package action

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/jamesprial/nut-mcp/internal/registry"
	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func extractResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("CallToolResult is nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("CallToolResult.Content is empty")
	}
	tc, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("Content[0] is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

type toolFixture struct {
	svc     *Service
	reg     *registry.Registry
	runner  *mockRunner
	confirm *safety.ConfirmationTracker
	audit   *bytes.Buffer
	tools   map[string]tools.Registration
}

func newToolFixture(t *testing.T, commands ...string) *toolFixture {
	t.Helper()
	svc, reg, runner := newLoadedService(t, commands...)
	var buf bytes.Buffer
	confirm := safety.NewConfirmationTracker([]string{"load.off", "shutdown.*"})

	regs := ActionTools(svc, reg, confirm, safety.NewAuditLogger(&buf))
	byName := make(map[string]tools.Registration, len(regs))
	for _, r := range regs {
		byName[r.Tool.Name] = r
	}
	return &toolFixture{svc: svc, reg: reg, runner: runner, confirm: confirm, audit: &buf, tools: byName}
}

func (f *toolFixture) call(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	reg, ok := f.tools[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	result, err := reg.Handler(context.Background(), newCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	return extractResultText(t, result)
}

func (f *toolFixture) auditEntries(t *testing.T) []safety.AuditEntry {
	t.Helper()
	var out []safety.AuditEntry
	for _, line := range strings.Split(strings.TrimSpace(f.audit.String()), "\n") {
		if line == "" {
			continue
		}
		var e safety.AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("audit line is not JSON: %v\n%s", err, line)
		}
		out = append(out, e)
	}
	return out
}

var tokenPattern = regexp.MustCompile(`confirmation_token="([0-9a-f]+)"`)

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func Test_ActionTools_Registrations(t *testing.T) {
	f := newToolFixture(t)

	want := map[string][]string{
		toolNameDeviceList:   nil,
		toolNameList:         {"device_id"},
		toolNameCapabilities: {"type"},
		toolNameValidate:     {"config"},
		toolNameCall:         {"device_id", "type"},
	}
	if len(f.tools) != len(want) {
		t.Fatalf("ActionTools() registered %d tools, want %d", len(f.tools), len(want))
	}
	for name, required := range want {
		reg, ok := f.tools[name]
		if !ok {
			t.Errorf("tool %q missing", name)
			continue
		}
		if reg.Handler == nil {
			t.Errorf("tool %q has nil handler", name)
		}
		if strings.Join(reg.Tool.InputSchema.Required, ",") != strings.Join(required, ",") {
			t.Errorf("tool %q required = %v, want %v", name, reg.Tool.InputSchema.Required, required)
		}
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func Test_DeviceListHandler_ReportsEntryState(t *testing.T) {
	f := newToolFixture(t, "beeper.mute", "load.off")
	f.reg.UpsertEntry(registry.ConfigEntry{ID: "entry-2", Domain: Domain, State: registry.StateSetupRetry, Reason: "timeout"})
	f.reg.UpsertDevice(registry.Device{ID: "device-2", Name: "Closet UPS", ConfigEntries: []string{"entry-2"}})

	text := f.call(t, toolNameDeviceList, map[string]any{})

	var rows []struct {
		ID         string `json:"id"`
		EntryState string `json:"entry_state"`
		Reason     string `json:"reason"`
		Actions    int    `json:"actions"`
	}
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d devices, want 2", len(rows))
	}
	// Sorted by name: "Closet UPS" before "Rack UPS".
	if rows[0].ID != "device-2" || rows[0].EntryState != "setup_retry" || rows[0].Reason != "timeout" || rows[0].Actions != 0 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].ID != testDeviceID || rows[1].EntryState != "loaded" || rows[1].Actions != 2 {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func Test_ActionListHandler_Cases(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		want     string
	}{
		{name: "known device", deviceID: testDeviceID, want: `"type": "test_battery_start"`},
		{name: "unknown device", deviceID: "missing", want: "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newToolFixture(t, "test.battery.start")
			text := f.call(t, toolNameList, map[string]any{"device_id": tt.deviceID})
			if !strings.Contains(text, tt.want) {
				t.Errorf("result = %s, want substring %s", text, tt.want)
			}
		})
	}
}

func Test_CapabilitiesHandler_LoadOff(t *testing.T) {
	f := newToolFixture(t)
	text := f.call(t, toolNameCapabilities, map[string]any{"type": "load_off"})

	var caps Capabilities
	if err := json.Unmarshal([]byte(text), &caps); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	if len(caps.ExtraFields) != 1 || caps.ExtraFields[0].Name != "delay" || caps.ExtraFields[0].Type != "integer" {
		t.Errorf("ExtraFields = %+v", caps.ExtraFields)
	}
}

func Test_ValidateHandler_Cases(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			name:   "valid",
			config: `{"device_id": "device-1", "domain": "nut", "type": "load_off", "delay": 30, "metadata": {}}`,
			want:   `"delay": 30`,
		},
		{
			name:   "invalid parameter",
			config: `{"device_id": "device-1", "domain": "nut", "type": "test_battery_start", "battery_test_type": 5}`,
			want:   "error: invalid device automation config",
		},
		{
			name:   "not JSON",
			config: `{`,
			want:   "error: parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newToolFixture(t)
			text := f.call(t, toolNameValidate, map[string]any{"config": tt.config})
			if !strings.Contains(text, tt.want) {
				t.Errorf("result = %s, want substring %q", text, tt.want)
			}
			if strings.Contains(text, "metadata") {
				t.Errorf("metadata should not be echoed: %s", text)
			}
		})
	}
}

func Test_CallHandler_RunsCommand(t *testing.T) {
	f := newToolFixture(t, "test.battery.start")

	text := f.call(t, toolNameCall, map[string]any{
		"device_id": testDeviceID,
		"type":      "test_battery_start",
		"params":    `{"battery_test_type": "quick"}`,
	})
	if strings.HasPrefix(text, "error:") {
		t.Fatalf("unexpected error result: %s", text)
	}
	if len(f.runner.calls) != 1 || f.runner.calls[0].value == nil || *f.runner.calls[0].value != "quick" {
		t.Fatalf("runner calls = %+v, want one with value quick", f.runner.calls)
	}

	var res callResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	entries := f.auditEntries(t)
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].ContextID == "" || entries[0].ContextID != res.ContextID {
		t.Errorf("audit context_id = %q, result context_id = %q", entries[0].ContextID, res.ContextID)
	}
	if entries[0].Result != "ok" || entries[0].DeviceID != testDeviceID || entries[0].Command != "test.battery.start" {
		t.Errorf("audit entry = %+v", entries[0])
	}
}

func Test_CallHandler_ConfirmationFlow(t *testing.T) {
	f := newToolFixture(t, "load.off")
	args := map[string]any{
		"device_id": testDeviceID,
		"type":      "load_off",
		"params":    `{"delay": 0}`,
	}

	text := f.call(t, toolNameCall, args)
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		t.Fatalf("first call should ask for confirmation, got: %s", text)
	}
	if len(f.runner.calls) != 0 {
		t.Fatal("command ran before confirmation")
	}

	args["confirmation_token"] = m[1]
	text = f.call(t, toolNameCall, args)
	if strings.HasPrefix(text, "error:") || tokenPattern.MatchString(text) {
		t.Fatalf("confirmed call failed: %s", text)
	}
	if len(f.runner.calls) != 1 || f.runner.calls[0].value == nil || *f.runner.calls[0].value != "0" {
		t.Fatalf("runner calls = %+v, want one load.off with value 0", f.runner.calls)
	}

	// Tokens are single-use.
	text = f.call(t, toolNameCall, args)
	if !tokenPattern.MatchString(text) {
		t.Errorf("reused token should prompt again, got: %s", text)
	}
	if len(f.runner.calls) != 1 {
		t.Errorf("runner called %d times, want 1", len(f.runner.calls))
	}
}

func Test_CallHandler_TokenBoundToDevice(t *testing.T) {
	f := newToolFixture(t, "load.off")
	token := f.confirm.RequestConfirmation("load.off", "another-device", "")

	text := f.call(t, toolNameCall, map[string]any{
		"device_id":          testDeviceID,
		"type":               "load_off",
		"confirmation_token": token,
	})
	if !tokenPattern.MatchString(text) {
		t.Errorf("token for another device should not confirm, got: %s", text)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner called %d times, want 0", len(f.runner.calls))
	}
}

func Test_CallHandler_ErrorCases(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "unknown device",
			args: map[string]any{"device_id": "missing", "type": "beeper_mute"},
			want: "Unable to find a NUT device with id missing",
		},
		{
			name: "unknown type",
			args: map[string]any{"device_id": testDeviceID, "type": "warp_drive"},
			want: "data['type']",
		},
		{
			name: "bad params JSON",
			args: map[string]any{"device_id": testDeviceID, "type": "beeper_mute", "params": "[1]"},
			want: "parse params",
		},
		{
			name: "device field in params cannot redirect",
			args: map[string]any{"device_id": "missing", "type": "beeper_mute", "params": `{"device_id": "device-1"}`},
			want: "Unable to find a NUT device with id missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newToolFixture(t, "beeper.mute")
			text := f.call(t, toolNameCall, tt.args)
			if !strings.HasPrefix(text, "error:") || !strings.Contains(text, tt.want) {
				t.Errorf("result = %q, want error containing %q", text, tt.want)
			}
			if len(f.runner.calls) != 0 {
				t.Errorf("runner called %d times, want 0", len(f.runner.calls))
			}
			if entries := f.auditEntries(t); len(entries) != 1 || entries[0].Result == "ok" {
				t.Errorf("audit entries = %+v, want one failure", entries)
			}
		})
	}
}

func Test_CallHandler_NilAuditAndConfirm(t *testing.T) {
	svc, reg, runner := newLoadedService(t, "load.off")
	var call tools.Registration
	for _, r := range ActionTools(svc, reg, nil, nil) {
		if r.Tool.Name == toolNameCall {
			call = r
		}
	}

	result, err := call.Handler(context.Background(), newCallToolRequest(toolNameCall, map[string]any{
		"device_id": testDeviceID,
		"type":      "load_off",
	}))
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	if text := extractResultText(t, result); strings.HasPrefix(text, "error:") {
		t.Fatalf("unexpected error: %s", text)
	}
	if len(runner.calls) != 1 {
		t.Errorf("runner called %d times, want 1", len(runner.calls))
	}
}
