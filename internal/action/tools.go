package action

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/registry"
	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	toolNameDeviceList   = "nut_device_list"
	toolNameList         = "nut_action_list"
	toolNameCapabilities = "nut_action_capabilities"
	toolNameValidate     = "nut_action_validate"
	toolNameCall         = "nut_action_call"
)

// Directory is the registry view used by the device listing tool.
type Directory interface {
	Devices() []registry.Device
	Entry(id string) (registry.ConfigEntry, bool)
}

// deviceSummary is one row of nut_device_list.
type deviceSummary struct {
	registry.Device
	EntryState registry.EntryState `json:"entry_state,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Actions    int                 `json:"actions"`
}

// ActionTools returns the MCP tool registrations for device actions.
func ActionTools(svc *Service, dir Directory, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		deviceList(svc, dir, audit),
		actionList(svc, audit),
		actionCapabilities(svc, audit),
		actionValidate(svc, audit),
		actionCall(svc, confirm, audit),
	}
}

func deviceList(svc *Service, dir Directory, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameDeviceList,
		mcp.WithDescription("List UPS devices with the state of their config entry and the number of actions they offer."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		devices := dir.Devices()
		out := make([]deviceSummary, 0, len(devices))
		for _, d := range devices {
			row := deviceSummary{Device: d, Actions: len(svc.ListActions(d.ID))}
			for _, entryID := range d.ConfigEntries {
				if e, ok := dir.Entry(entryID); ok && e.Domain == Domain {
					row.EntryState, row.Reason = e.State, e.Reason
					break
				}
			}
			out = append(out, row)
		}

		tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameDeviceList, Params: map[string]any{}, Result: "ok"}, start)
		return tools.JSONResult(out), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func actionList(svc *Service, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameList,
		mcp.WithDescription("List the device actions a UPS currently offers."),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Device id from nut_device_list"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		deviceID := req.GetString("device_id", "")
		params := map[string]any{"device_id": deviceID}

		actions := svc.ListActions(deviceID)

		tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameList, DeviceID: deviceID, Params: params, Result: "ok"}, start)
		return tools.JSONResult(actions), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func actionCapabilities(svc *Service, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameCapabilities,
		mcp.WithDescription("Describe the extra fields (command parameter) an action type accepts."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Action type, e.g. test_battery_start"),
			mcp.Enum(svc.Catalog().ActionTypes()...),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		actionType := req.GetString("type", "")
		params := map[string]any{"type": actionType}

		tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameCapabilities, Params: params, Result: "ok"}, start)
		return tools.JSONResult(svc.Capabilities(actionType)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func actionValidate(svc *Service, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameValidate,
		mcp.WithDescription("Validate a device action configuration without running it."),
		mcp.WithString("config",
			mcp.Required(),
			mcp.Description(`JSON object, e.g. {"device_id": "...", "domain": "nut", "type": "load_off", "delay": 30}`),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		raw, err := tools.ObjectArg(req, "config")
		if err != nil {
			tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameValidate, Result: "error: " + err.Error()}, start)
			return tools.ErrorResult(err.Error()), nil
		}
		deviceID, _ := raw[KeyDeviceID].(string)
		rec := tools.AuditRecord{Tool: toolNameValidate, DeviceID: deviceID, Params: raw}

		cfg, err := svc.ValidateConfig(raw)
		if err != nil {
			rec.Result = "invalid: " + err.Error()
			tools.LogAudit(audit, rec, start)
			return tools.ErrorResult(err.Error()), nil
		}

		rec.Result = "ok"
		tools.LogAudit(audit, rec, start)
		return tools.JSONResult(cfg.Map()), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func actionCall(svc *Service, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameCall,
		mcp.WithDescription("Run a device action on a UPS. Commands that cut or interrupt power require confirmation."),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Device id from nut_device_list"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Action type from nut_action_list"),
		),
		mcp.WithString("params",
			mcp.Description(`Optional JSON object with the command parameter, e.g. {"delay": 30}`),
		),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		deviceID := req.GetString("device_id", "")
		actionType := req.GetString("type", "")
		token := req.GetString("confirmation_token", "")
		rec := tools.AuditRecord{
			Tool:     toolNameCall,
			DeviceID: deviceID,
			Command:  nut.CommandName(actionType),
			Params:   map[string]any{"type": actionType, "params": req.GetString("params", "")},
		}
		fail := func(result, msg string) (*mcp.CallToolResult, error) {
			rec.Result = result
			tools.LogAudit(audit, rec, start)
			return tools.ErrorResult(msg), nil
		}

		extra, err := tools.ObjectArg(req, "params")
		if err != nil {
			return fail("error: "+err.Error(), err.Error())
		}
		raw := map[string]any{}
		for k, v := range extra {
			raw[k] = v
		}
		raw[KeyDeviceID] = deviceID
		raw[KeyDomain] = Domain
		raw[KeyType] = actionType

		cfg, err := svc.ValidateConfig(raw)
		if err != nil {
			return fail("invalid: "+err.Error(), err.Error())
		}

		command := nut.CommandName(cfg.Type)
		if confirm.NeedsConfirmation(command) && !confirm.Confirm(token, command, deviceID) {
			rec.Result = "confirmation requested"
			tools.LogAudit(audit, rec, start)
			desc := fmt.Sprintf("This will run %s on the UPS behind device %q. The connected load may lose power.", command, deviceID)
			return tools.ConfirmPrompt(confirm, toolNameCall, command, deviceID, desc), nil
		}

		actx := NewContext("")
		rec.ContextID = actx.ID
		if err := svc.CallAction(ctx, cfg, nil, actx); err != nil {
			return fail("error: "+err.Error(), err.Error())
		}

		rec.Result = "ok"
		tools.LogAudit(audit, rec, start)
		return tools.JSONResult(callResult{Type: cfg.Type, DeviceID: deviceID, ContextID: actx.ID}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

type callResult struct {
	Type      string `json:"type"`
	DeviceID  string `json:"device_id"`
	ContextID string `json:"context_id"`
}
