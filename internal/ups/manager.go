package ups

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jamesprial/nut-mcp/internal/graphql"
)

var (
	_ UPSMonitor    = (*GraphQLUPSMonitor)(nil)
	_ CommandRunner = (*GraphQLCommandRunner)(nil)
)

// GraphQLUPSMonitor implements UPSMonitor by querying the bridge GraphQL API.
type GraphQLUPSMonitor struct {
	client graphql.Client
}

// NewGraphQLUPSMonitor returns a new GraphQLUPSMonitor that uses the provided
// GraphQL client to fetch UPS device data.
func NewGraphQLUPSMonitor(client graphql.Client) *GraphQLUPSMonitor {
	if client == nil {
		panic("graphql client must not be nil")
	}
	return &GraphQLUPSMonitor{client: client}
}

// upsResponse maps the contents of the data object; Execute already strips
// the outer "data" envelope.
type upsResponse struct {
	UPS []UPSDevice `json:"ups"`
}

const upsQuery = `query { ups { id name manufacturer model status battery { charge runtime } power { inputVoltage outputVoltage load } } }`

// GetDevices returns every UPS known to the bridge. An empty (non-nil) slice
// is returned when no devices are configured.
func (m *GraphQLUPSMonitor) GetDevices(ctx context.Context) ([]UPSDevice, error) {
	data, err := m.client.Execute(ctx, upsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("get ups devices: %w", err)
	}

	var resp upsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("get ups devices: parse response: %w", err)
	}

	if resp.UPS == nil {
		return []UPSDevice{}, nil
	}
	return resp.UPS, nil
}

// GraphQLCommandRunner implements CommandRunner against the bridge's
// upsCommands query and upsRunCommand mutation.
type GraphQLCommandRunner struct {
	client graphql.Client
}

// NewGraphQLCommandRunner returns a runner that uses client.
func NewGraphQLCommandRunner(client graphql.Client) *GraphQLCommandRunner {
	if client == nil {
		panic("graphql client must not be nil")
	}
	return &GraphQLCommandRunner{client: client}
}

const (
	listCommandsQuery  = `query ($id: String!) { upsCommands(id: $id) { name description } }`
	runCommandMutation = `mutation ($id: String!, $command: String!, $value: String) { upsRunCommand(id: $id, command: $command, value: $value) }`
)

type commandsResponse struct {
	Commands []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"upsCommands"`
}

type runCommandResponse struct {
	OK bool `json:"upsRunCommand"`
}

// ListCommands returns the instant commands upsID supports.
func (r *GraphQLCommandRunner) ListCommands(ctx context.Context, upsID string) (map[string]string, error) {
	data, err := r.client.Execute(ctx, listCommandsQuery, map[string]any{"id": upsID})
	if err != nil {
		return nil, fmt.Errorf("list commands for %s: %w", upsID, err)
	}

	var resp commandsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("list commands for %s: parse response: %w", upsID, err)
	}

	out := make(map[string]string, len(resp.Commands))
	for _, c := range resp.Commands {
		out[c.Name] = c.Description
	}
	return out, nil
}

// RunCommand runs command on upsID. A nil value sends no value.
func (r *GraphQLCommandRunner) RunCommand(ctx context.Context, upsID, command string, value *string) error {
	vars := map[string]any{"id": upsID, "command": command}
	if value != nil {
		vars["value"] = *value
	}

	data, err := r.client.Execute(ctx, runCommandMutation, vars)
	if err != nil {
		return fmt.Errorf("run %s on %s: %w", command, upsID, err)
	}

	var resp runCommandResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("run %s on %s: parse response: %w", command, upsID, err)
	}
	if !resp.OK {
		return fmt.Errorf("run %s on %s: command rejected by ups", command, upsID)
	}
	return nil
}
