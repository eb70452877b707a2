package searchbridge

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type mcpSearchArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
}

type mcpStatus struct {
	Tracked     int    `json:"tracked"`
	Processed   int    `json:"processed"`
	Unprocessed int    `json:"unprocessed"`
	LastError   string `json:"last_error,omitempty"`
	LatencyMS   int64  `json:"latency_ms"`
}

// RegisterMCP exposes the service to MCP clients: one tool to run a search
// through the cache-first flow, one to inspect sync progress.
func (s *Service) RegisterMCP(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "searchbridge_search",
		Description: "Semantic search over the site's indexed content",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpSearchArgs) (*mcp.CallToolResult, any, error) {
		results, err := s.Search(ctx, args.Query)
		if err != nil {
			return nil, nil, err
		}
		if results == nil {
			results = json.RawMessage("[]")
		}
		return nil, map[string]any{"results": results}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "searchbridge_status",
		Description: "Current synchronization state of the content index",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		total, err := s.store.CountTotal(ctx)
		if err != nil {
			return nil, nil, err
		}
		processed, err := s.store.CountProcessed(ctx)
		if err != nil {
			return nil, nil, err
		}
		unprocessed, err := s.store.CountUnprocessed(ctx)
		if err != nil {
			return nil, nil, err
		}
		st := mcpStatus{
			Tracked:     total,
			Processed:   processed,
			Unprocessed: unprocessed,
			LatencyMS:   s.gateway.LastLatency().Milliseconds(),
		}
		if cerr := s.gateway.LastError(); cerr != nil {
			st.LastError = cerr.Error()
		}
		return nil, st, nil
	})
}
