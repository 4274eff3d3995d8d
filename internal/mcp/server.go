package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/otp-relay/sms-otp-bridge/internal/api"
)

// StatusToolName is the name of the relay status tool
const StatusToolName = "otp_relay_status"

// StatusInput is empty - no input needed
type StatusInput struct{}

// StatusOutput is the result of the status tool
type StatusOutput struct {
	Reachable  bool                `json:"reachable" jsonschema:"whether the liveness endpoint answered"`
	Healthy    bool                `json:"healthy" jsonschema:"true when a successful fetch happened within the health window"`
	HTTPStatus int                 `json:"http_status" jsonschema:"HTTP status of the liveness endpoint"`
	Health     *api.HealthResponse `json:"health,omitempty" jsonschema:"the liveness payload"`
	Error      string              `json:"error,omitempty"`
}

// NewServer creates an MCP server exposing the relay status tool
func NewServer(client *Client, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{
		Name:    "otp-relay",
		Version: version,
	}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        StatusToolName,
		Description: "Report the OTP relay's liveness: last relayed SMS id, poll count, browser session state, configured chat destinations and time since the last successful poll.",
	}, statusHandler(client))

	return server
}

func statusHandler(client *Client) sdk.ToolHandlerFor[StatusInput, StatusOutput] {
	return func(ctx context.Context, req *sdk.CallToolRequest, input StatusInput) (*sdk.CallToolResult, StatusOutput, error) {
		health, code, err := client.Health(ctx)
		if err != nil {
			return nil, StatusOutput{HTTPStatus: code, Error: err.Error()}, nil
		}
		return nil, StatusOutput{
			Reachable:  true,
			Healthy:    health.Status == "ok",
			HTTPStatus: code,
			Health:     health,
		}, nil
	}
}
