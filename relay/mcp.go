package relay

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage"
)

type callHistoryInput struct {
	CallID string `json:"call_id" jsonschema:"the call identifier sent in the call-id header"`
}

type recentTurnsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of most recent turns to return; 0 returns the default window"`
}

type turnsOutput struct {
	Count int        `json:"count"`
	Turns []llm.Turn `json:"turns"`
}

// newMCPServer exposes the turn log to MCP clients as read-only tools.
func (s *Server) newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "callflow",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "call_history",
		Description: "Returns the recent turns of one call, oldest first, as they would be replayed to the model.",
	}, s.callHistoryTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_turns",
		Description: "Returns the most recent turns across all calls, oldest first.",
	}, s.recentTurnsTool)

	return server
}

// mcpHandler serves the MCP server over stateless streamable HTTP so it can
// sit behind the fiber adaptor.
func (s *Server) mcpHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

func (s *Server) callHistoryTool(ctx context.Context, _ *mcp.CallToolRequest, in callHistoryInput) (*mcp.CallToolResult, turnsOutput, error) {
	turns := s.driver.HistoryFor(ctx, in.CallID)
	s.logger.Debug("mcp call_history", zap.String("call_id", in.CallID), zap.Int("count", len(turns)))

	return nil, turnsOutput{Count: len(turns), Turns: turns}, nil
}

func (s *Server) recentTurnsTool(ctx context.Context, _ *mcp.CallToolRequest, in recentTurnsInput) (*mcp.CallToolResult, turnsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = storage.DefaultLimit
	}

	turns := s.driver.Load(ctx, limit)
	s.logger.Debug("mcp recent_turns", zap.Int("limit", limit), zap.Int("count", len(turns)))

	return nil, turnsOutput{Count: len(turns), Turns: turns}, nil
}
