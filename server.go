package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gamma-omg/manifesto-gpt/chat"
	"github.com/gamma-omg/manifesto-gpt/docstore"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const previewRunes = 200

type manifestoSearcher interface {
	Search(ctx context.Context, query string, partyID string, topK int) ([]docstore.Match, error)
}

// NewSearchServer exposes retrieval as an MCP tool so the index can be
// inspected without going through the chat model.
func NewSearchServer(searcher manifestoSearcher, parties []string) *server.MCPServer {
	tool := mcp.NewTool("search_manifesto",
		mcp.WithDescription("Search the indexed party manifestos and return the best matching passages"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query in Nepali or English"),
		),
		mcp.WithString("party",
			mcp.Description("Party id to search in; empty searches every party"),
			mcp.Enum(parties...),
		),
		mcp.WithNumber("top",
			mcp.Description("Number of passages to return"),
		),
	)

	srv := server.NewMCPServer("manifesto-gpt", "0.1.0", server.WithToolCapabilities(false))
	srv.AddTool(tool, searchHandler(searcher))

	return srv
}

func searchHandler(searcher manifestoSearcher) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		party := request.GetString("party", "")
		top := request.GetInt("top", chat.SingleTopK)

		res, err := searcher.Search(ctx, q, party, top)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var response strings.Builder
		for _, r := range res {
			raw, err := json.Marshal(struct {
				ID     string  `json:"id"`
				Score  float32 `json:"score"`
				Party  string  `json:"party"`
				Source string  `json:"source"`
				Text   string  `json:"text"`
			}{
				ID:     r.ID,
				Score:  r.Score,
				Party:  r.PartyID,
				Source: r.Source,
				Text:   r.Text,
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			response.WriteString(fmt.Sprintf("%s\n", string(raw)))
		}

		return mcp.NewToolResultText(response.String()), nil
	}
}

// preview shortens passage text for terminal output.
func preview(text string) string {
	r := []rune(strings.Join(strings.Fields(text), " "))
	if len(r) <= previewRunes {
		return string(r)
	}

	return string(r[:previewRunes]) + "..."
}
