package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramdev/engram/pkg/retrieval"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

func (m *MCPServer) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	text, _ := args["text"].(string)
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	source, _ := args["source"].(string)

	var tags []string
	if tagsRaw, ok := args["tags"].([]interface{}); ok {
		for _, t := range tagsRaw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	scope, err := m.resolveScope(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve context: %v", err)), nil
	}

	ev, err := writeEvent(ctx, m.deps, store.Event{
		Text:   text,
		Source: source,
		Scope:  scope,
		Tags:   tags,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"id":        ev.ID,
		"timestamp": ev.Timestamp,
		"scope":     ev.Scope,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	objective, _ := args["objective"].(string)
	if objective == "" {
		return mcp.NewToolResultError("objective is required"), nil
	}

	scope, err := m.resolveScope(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve context: %v", err)), nil
	}

	topK := 0
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	res, err := m.retriever.Retrieve(ctx, retrieval.Request{
		Objective: objective,
		Scope:     scope,
		TopK:      topK,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieve error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"results": res.Fused,
		"signals": res.Signals,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleRetrieveAndPack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	objective, _ := args["objective"].(string)
	if objective == "" {
		return mcp.NewToolResultError("objective is required"), nil
	}

	scope, err := m.resolveScope(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve context: %v", err)), nil
	}

	topK := 0
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}
	budget := 0
	if v, ok := args["budget"].(float64); ok && v > 0 {
		budget = int(v)
	}

	packed, _, err := m.retriever.RetrieveAndPack(ctx, retrieval.Request{
		Objective: objective,
		Scope:     scope,
		TopK:      topK,
	}, packOptions(budget))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieve error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(packed, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleSetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name, _ := args["name"].(string)
	scope := scopeFromArgs(args)

	if err := m.deps.episodic.SetContext(ctx, name, scope); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("set context: %v", err)), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"name":  name,
		"scope": scope,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// resolveScope merges explicit scope arguments over the named context's
// stored defaults. Naming a missing context is an error; explicit fields
// alone are fine.
func (m *MCPServer) resolveScope(ctx context.Context, args map[string]interface{}) (types.Scope, error) {
	name, _ := args["context"].(string)
	return resolveScope(ctx, m.deps, scopeFromArgs(args), name)
}

func scopeFromArgs(args map[string]interface{}) types.Scope {
	var s types.Scope
	s.TenantID, _ = args["tenant_id"].(string)
	s.ProjectID, _ = args["project_id"].(string)
	s.ContextID, _ = args["context_id"].(string)
	s.TaskID, _ = args["task_id"].(string)
	return s
}
