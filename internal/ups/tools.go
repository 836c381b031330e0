package ups

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const toolNameUPSStatus = "ups_status"

// StatusTools returns the read-only UPS status tool registrations.
func StatusTools(mon UPSMonitor, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		upsStatus(mon, audit),
	}
}

func upsStatus(mon UPSMonitor, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameUPSStatus,
		mcp.WithDescription("List UPS devices known to the NUT bridge with their status, battery levels, and power information."),
		mcp.WithString("ups_id",
			mcp.Description("Only report the UPS with this bridge id"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		upsID := req.GetString("ups_id", "")
		params := map[string]any{"ups_id": upsID}

		devices, err := mon.GetDevices(ctx)
		if err != nil {
			tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameUPSStatus, Params: params, Result: "error: " + err.Error()}, start)
			return tools.ErrorResult(err.Error()), nil
		}

		if upsID != "" {
			var match []UPSDevice
			for _, d := range devices {
				if d.ID == upsID {
					match = append(match, d)
				}
			}
			if len(match) == 0 {
				tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameUPSStatus, Params: params, Result: "not found"}, start)
				return tools.ErrorResult(fmt.Sprintf("no UPS with id %q", upsID)), nil
			}
			devices = match
		}

		tools.LogAudit(audit, tools.AuditRecord{Tool: toolNameUPSStatus, Params: params, Result: "ok"}, start)
		return tools.JSONResult(devices), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
