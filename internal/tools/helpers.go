// Package tools provides shared helper utilities for MCP tool handlers.
package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult marshals v to indented JSON and returns an mcp.CallToolResult.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns an mcp.CallToolResult that describes an error condition.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf("error: %s", msg))
}

// AuditRecord is what a handler reports about one invocation.
type AuditRecord struct {
	Tool      string
	ContextID string
	DeviceID  string
	Command   string
	Params    map[string]any
	Result    string
}

// LogAudit logs a tool invocation to the audit logger, silently ignoring a nil logger.
func LogAudit(audit *safety.AuditLogger, rec AuditRecord, start time.Time) {
	if audit == nil {
		return
	}
	_ = audit.Log(safety.AuditEntry{
		Timestamp: start,
		Tool:      rec.Tool,
		ContextID: rec.ContextID,
		DeviceID:  rec.DeviceID,
		Command:   rec.Command,
		Params:    rec.Params,
		Result:    rec.Result,
		Duration:  time.Since(start),
	})
}

// ConfirmPrompt issues a confirmation request for running command on
// deviceID and returns the prompt result.
func ConfirmPrompt(confirm *safety.ConfirmationTracker, toolName, command, deviceID, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(command, deviceID, description)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation required for %s on device %q.\n\n%s\n\nTo proceed, call %s again with confirmation_token=%q.",
		command, deviceID, description, toolName, token,
	))
}

// ObjectArg decodes the string argument key as a JSON object. A missing or
// empty argument yields an empty map.
func ObjectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw := req.GetString(key, "")
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	if out == nil {
		return nil, fmt.Errorf("parse %s: expected a JSON object", key)
	}
	return out, nil
}
