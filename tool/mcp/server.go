package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/tool"
)

// SpeakFunc produces a contribution for a delegate request.
type SpeakFunc func(ctx context.Context, req tool.Request) (tool.Response, error)

// NewServer creates an MCP server exposing a single delegate tool named
// toolName. It lets an external process act as a participant's delegate.
func NewServer(toolName string, speak SpeakFunc) *server.MCPServer {
	s := server.NewMCPServer("agora-delegate", "1.0.0", server.WithToolCapabilities(true))

	speakTool := mcp.NewTool(toolName,
		mcp.WithDescription("Produces the next debate contribution for a participant"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Deliberation session id")),
		mcp.WithString("participant_id", mcp.Required(), mcp.Description("Participant the delegate speaks for")),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Debate topic")),
		mcp.WithString("phase", mcp.Required(), mcp.Description("Current debate phase")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Rendered participant prompt")),
		mcp.WithString("transcript", mcp.Description("Recent statements, one per line")),
	)

	s.AddTool(speakTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		req := tool.Request{
			SessionID:     stringArg(args, "session_id"),
			ParticipantID: stringArg(args, "participant_id"),
			Topic:         stringArg(args, "topic"),
			Phase:         core.Phase(stringArg(args, "phase")),
			Prompt:        stringArg(args, "prompt"),
		}
		if t := stringArg(args, "transcript"); t != "" {
			req.Messages = []model.Message{{Role: model.RoleUser, Content: "Debate so far:\n" + t}}
		}
		if req.ParticipantID == "" {
			return mcp.NewToolResultError("participant_id argument is required"), nil
		}
		resp, err := speak(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(resp.Content), nil
	})

	return s
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
