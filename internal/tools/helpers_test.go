package tools_test

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// resultText extracts the text string from the first Content element of a
// CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
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

func newRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func Test_JSONResult_Cases(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		validate func(t *testing.T, text string)
	}{
		{
			name: "struct produces indented JSON",
			input: struct {
				Type string `json:"type"`
			}{Type: "beeper_mute"},
			validate: func(t *testing.T, text string) {
				t.Helper()
				if !strings.Contains(text, "  \"type\": \"beeper_mute\"") {
					t.Errorf("expected 2-space indented JSON, got:\n%s", text)
				}
			},
		},
		{
			name:  "nil input produces null",
			input: nil,
			validate: func(t *testing.T, text string) {
				t.Helper()
				if strings.TrimSpace(text) != "null" {
					t.Errorf("text = %q, want null", text)
				}
			},
		},
		{
			name:  "unmarshalable value returns error text",
			input: make(chan int),
			validate: func(t *testing.T, text string) {
				t.Helper()
				if !strings.HasPrefix(text, "error marshaling result:") {
					t.Errorf("text = %q, want error prefix", text)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, resultText(t, tools.JSONResult(tt.input)))
		})
	}
}

func Test_ErrorResult_PrefixFormat(t *testing.T) {
	got := resultText(t, tools.ErrorResult("device not found"))
	if got != "error: device not found" {
		t.Errorf("ErrorResult() = %q, want %q", got, "error: device not found")
	}
}

func Test_LogAudit_NilLogger_NoPanic(t *testing.T) {
	tools.LogAudit(nil, tools.AuditRecord{Tool: "nut_action_list"}, time.Now())
}

func Test_LogAudit_WritesRecord(t *testing.T) {
	var buf bytes.Buffer
	audit := safety.NewAuditLogger(&buf)
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	tools.LogAudit(audit, tools.AuditRecord{
		Tool:      "nut_action_call",
		ContextID: "ctx-1",
		DeviceID:  "dev-1",
		Params:    map[string]any{"type": "load_off"},
		Result:    "ok",
	}, start)

	var entry safety.AuditEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("audit output is not JSON: %v\n%s", err, buf.String())
	}
	if entry.Tool != "nut_action_call" || entry.ContextID != "ctx-1" || entry.DeviceID != "dev-1" {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.Timestamp.Equal(start) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, start)
	}
	if entry.Duration <= 0 {
		t.Errorf("Duration = %v, want positive", entry.Duration)
	}
}

func Test_ConfirmPrompt_IssuesConsumableToken(t *testing.T) {
	confirm := safety.NewConfirmationTracker([]string{"load.off"})
	text := resultText(t, tools.ConfirmPrompt(confirm, "nut_action_call", "load.off", "dev-1", "Cuts power to the outlets."))

	if !strings.Contains(text, "Cuts power to the outlets.") {
		t.Errorf("prompt missing description: %q", text)
	}
	m := regexp.MustCompile(`confirmation_token="([0-9a-f]+)"`).FindStringSubmatch(text)
	if m == nil {
		t.Fatalf("prompt has no token: %q", text)
	}
	if !confirm.Confirm(m[1], "load.off", "dev-1") {
		t.Error("token from prompt should confirm the same command and device")
	}
}

func Test_ObjectArg_Cases(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    map[string]any
		wantErr bool
	}{
		{name: "missing argument", args: map[string]any{}, want: map[string]any{}},
		{name: "empty string", args: map[string]any{"params": ""}, want: map[string]any{}},
		{
			name: "object",
			args: map[string]any{"params": `{"delay": 30}`},
			want: map[string]any{"delay": float64(30)},
		},
		{name: "not JSON", args: map[string]any{"params": `{delay`}, wantErr: true},
		{name: "JSON null", args: map[string]any{"params": `null`}, wantErr: true},
		{name: "JSON array", args: map[string]any{"params": `[1]`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tools.ObjectArg(newRequest(tt.args), "params")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("ObjectArg() = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}
