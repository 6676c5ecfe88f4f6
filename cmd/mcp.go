package cmd

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/retrieval"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the retrieval tools over MCP stdio",
	Long: `Expose memory tools to MCP clients over stdio:

  memory.write             append an event to the memory stores
  memory.retrieve          fused ranked retrieval
  memory.retrieve_and_pack retrieval packed into a token budget
  context.set_context      set named scope defaults for later calls`,
	RunE: runServeMCP,
}

func init() {
	rootCmd.AddCommand(serveMCPCmd)
}

// MCPServer holds the backends behind the MCP tool handlers.
type MCPServer struct {
	deps      *deps
	retriever *retrieval.Retriever
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	shutdown, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	m := &MCPServer{deps: d, retriever: buildRetriever(d, nil)}

	s := server.NewMCPServer(
		"engram",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	m.registerTools(s)

	logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s)
}

func (m *MCPServer) registerTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("memory.write",
		mcp.WithDescription("Append an event to agent memory. Stored in the episodic log and mirrored into the semantic index."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Event text to remember")),
		mcp.WithString("source", mcp.Description("Origin of the event, e.g. code_review, conversation")),
		mcp.WithArray("tags", mcp.Description("Tags for later filtering")),
		mcp.WithString("tenant_id", mcp.Description("Tenant scope")),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("context_id", mcp.Description("Context scope")),
		mcp.WithString("task_id", mcp.Description("Task scope")),
		mcp.WithString("context", mcp.Description("Named context whose scope defaults apply")),
	), m.handleWrite)

	s.AddTool(mcp.NewTool("memory.retrieve",
		mcp.WithDescription("Retrieve ranked memories for an objective. Episodic and semantic stages run independently and fuse by reciprocal rank."),
		mcp.WithString("objective", mcp.Required(), mcp.Description("What the agent is trying to do or recall")),
		mcp.WithNumber("top_k", mcp.Description("Candidates per stage (default 20)")),
		mcp.WithString("tenant_id", mcp.Description("Tenant scope")),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("context_id", mcp.Description("Context scope")),
		mcp.WithString("task_id", mcp.Description("Task scope")),
		mcp.WithString("context", mcp.Description("Named context whose scope defaults apply")),
	), m.handleRetrieve)

	s.AddTool(mcp.NewTool("memory.retrieve_and_pack",
		mcp.WithDescription("Retrieve memories and pack them into a token-budgeted context block ready for prompt injection."),
		mcp.WithString("objective", mcp.Required(), mcp.Description("What the agent is trying to do or recall")),
		mcp.WithNumber("budget", mcp.Description("Token budget for the packed block")),
		mcp.WithNumber("top_k", mcp.Description("Candidates per stage (default 20)")),
		mcp.WithString("tenant_id", mcp.Description("Tenant scope")),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("context_id", mcp.Description("Context scope")),
		mcp.WithString("task_id", mcp.Description("Task scope")),
		mcp.WithString("context", mcp.Description("Named context whose scope defaults apply")),
	), m.handleRetrieveAndPack)

	s.AddTool(mcp.NewTool("context.set_context",
		mcp.WithDescription("Store named scope defaults. Later calls naming this context inherit its tenant/project/context/task."),
		mcp.WithString("name", mcp.Description("Context name (default \"default\")")),
		mcp.WithString("tenant_id", mcp.Description("Tenant scope")),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("context_id", mcp.Description("Context scope")),
		mcp.WithString("task_id", mcp.Description("Task scope")),
	), m.handleSetContext)
}
