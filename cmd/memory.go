package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/retrieval"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Append an event to agent memory",
	RunE:  runWrite,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Retrieve ranked memories for an objective",
	RunE:  runRetrieve,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Set or show named scope defaults",
	RunE:  runContext,
}

func init() {
	rootCmd.AddCommand(writeCmd, retrieveCmd, contextCmd)

	// Scope flags shared across commands
	for _, c := range []*cobra.Command{writeCmd, retrieveCmd, contextCmd} {
		c.Flags().String("tenant", "", "Tenant scope")
		c.Flags().String("project", "", "Project scope")
		c.Flags().String("context-id", "", "Context scope")
		c.Flags().String("task", "", "Task scope")
	}

	writeCmd.Flags().String("text", "", "Text to remember")
	writeCmd.Flags().String("source", "", "Source of the event (e.g. code_review, conversation)")
	writeCmd.Flags().StringSlice("tags", nil, "Tags for later filtering")
	writeCmd.Flags().String("use-context", "", "Named context whose scope defaults apply")
	_ = writeCmd.MarkFlagRequired("text")

	retrieveCmd.Flags().String("objective", "", "What to recall")
	retrieveCmd.Flags().Int("top-k", 0, "Candidates per stage (0 = default)")
	retrieveCmd.Flags().Int("budget", 0, "Pack into this token budget (0 = ranked list only)")
	retrieveCmd.Flags().String("use-context", "", "Named context whose scope defaults apply")
	_ = retrieveCmd.MarkFlagRequired("objective")

	contextCmd.Flags().String("name", "default", "Context name")
	contextCmd.Flags().Bool("show", false, "Show the stored scope instead of setting it")
}

func scopeFromFlags(cmd *cobra.Command) types.Scope {
	var s types.Scope
	s.TenantID, _ = cmd.Flags().GetString("tenant")
	s.ProjectID, _ = cmd.Flags().GetString("project")
	s.ContextID, _ = cmd.Flags().GetString("context-id")
	s.TaskID, _ = cmd.Flags().GetString("task")
	return s
}

func runWrite(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	text, _ := cmd.Flags().GetString("text")
	source, _ := cmd.Flags().GetString("source")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	ctxName, _ := cmd.Flags().GetString("use-context")

	scope, err := resolveScope(ctx, d, scopeFromFlags(cmd), ctxName)
	if err != nil {
		return err
	}

	ev, err := writeEvent(ctx, d, store.Event{
		Text:   text,
		Source: source,
		Scope:  scope,
		Tags:   tags,
	})
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(map[string]any{
		"id":        ev.ID,
		"timestamp": ev.Timestamp,
		"scope":     ev.Scope,
	}, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runRetrieve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	objective, _ := cmd.Flags().GetString("objective")
	topK, _ := cmd.Flags().GetInt("top-k")
	budget, _ := cmd.Flags().GetInt("budget")
	ctxName, _ := cmd.Flags().GetString("use-context")

	scope, err := resolveScope(ctx, d, scopeFromFlags(cmd), ctxName)
	if err != nil {
		return err
	}

	r := buildRetriever(d, nil)
	req := retrieval.Request{Objective: objective, Scope: scope, TopK: topK}

	if budget > 0 {
		packed, _, err := r.RetrieveAndPack(ctx, req, packOptions(budget))
		if err != nil {
			return err
		}
		fmt.Print(packed.Prompt)
		if packed.Truncated {
			fmt.Fprintln(os.Stderr, "(truncated by budget)")
		}
		return nil
	}

	res, err := r.Retrieve(ctx, req)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(res.Fused, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runContext(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	name, _ := cmd.Flags().GetString("name")
	show, _ := cmd.Flags().GetBool("show")

	if show {
		scope, err := d.episodic.GetContext(ctx, name)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"name": name, "scope": scope})
	}

	scope := scopeFromFlags(cmd)
	if err := d.episodic.SetContext(ctx, name, scope); err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{"name": name, "scope": scope})
}
