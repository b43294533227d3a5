package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperengineering/dialectic"
)

// Server wraps the MCP server with Dialectic tools.
type Server struct {
	client    *dialectic.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Tool names.
const (
	ToolAnalyze   = "dialectic_analyze"
	ToolGenerate  = "dialectic_generate"
	ToolLearn     = "dialectic_learn"
	ToolRecommend = "dialectic_recommend"
	ToolSummary   = "dialectic_summary"
	ToolInsights  = "dialectic_insights"
	ToolPatterns  = "dialectic_patterns"
	ToolStoreInfo = "dialectic_store_info"
)

// NewServer creates a new MCP server with Dialectic tools registered.
func NewServer(client *dialectic.Client, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"dialectic",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	return s
}

// Run serves MCP over stdio until stdin closes.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: ToolAnalyze, Description: "Classify a development event into focus areas, confidences and complexity"},
		{Name: ToolGenerate, Description: "Generate ranked agent specs for a development event"},
		{Name: ToolLearn, Description: "Record the outcome of a generated batch so future recommendations improve"},
		{Name: ToolRecommend, Description: "Recommend agent types that worked for similar past events"},
		{Name: ToolSummary, Description: "Summarize what the learning store has learned"},
		{Name: ToolInsights, Description: "Show effectiveness and recent runs of one agent type"},
		{Name: ToolPatterns, Description: "List learned event patterns with their agent history and success rate"},
		{Name: ToolStoreInfo, Description: "Show where learning state is kept and how much it holds"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case ToolAnalyze:
		return s.handleAnalyze(ctx, args)
	case ToolGenerate:
		return s.handleGenerate(ctx, args)
	case ToolLearn:
		return s.handleLearn(ctx, args)
	case ToolRecommend:
		return s.handleRecommend(ctx, args)
	case ToolSummary:
		return s.handleSummary(ctx, args)
	case ToolInsights:
		return s.handleInsights(ctx, args)
	case ToolPatterns:
		return s.handlePatterns(ctx, args)
	case ToolStoreInfo:
		return s.handleStoreInfo(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func eventOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithArray("files",
			mcp.Description("Paths of the files changed by the event"),
			mcp.WithStringItems(),
		),
		mcp.WithString("message",
			mcp.Description("Commit message or description of the change"),
		),
		mcp.WithArray("errors",
			mcp.Description("Errors seen, as \"kind\" or \"kind:count\" strings"),
			mcp.WithStringItems(),
		),
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(ToolAnalyze,
		append([]mcp.ToolOption{
			mcp.WithDescription("Classify a development event: security, MVP, performance, documentation and error focus with confidences, file type histogram and complexity score."),
		}, eventOptions()...)...,
	), s.wrap(s.handleAnalyze))

	s.mcpServer.AddTool(mcp.NewTool(ToolGenerate,
		append([]mcp.ToolOption{
			mcp.WithDescription("Generate ranked agent specs for a development event. Returns a batch reference (E1, E2, ...) to pass to dialectic_learn once the agents' work is done."),
		}, eventOptions()...)...,
	), s.wrap(s.handleGenerate))

	s.mcpServer.AddTool(mcp.NewTool(ToolLearn,
		mcp.WithDescription("Record the outcome of a batch generated this session. Use the batch reference from dialectic_generate, or any agent_id in it."),
		mcp.WithString("ref",
			mcp.Description("Batch reference (E1) or agent_id"),
			mcp.Required(),
		),
		mcp.WithString("outcome",
			mcp.Description("success, partial or failure"),
			mcp.Required(),
			mcp.Enum(string(dialectic.OutcomeSuccess), string(dialectic.OutcomePartial), string(dialectic.OutcomeFailure)),
		),
		mcp.WithArray("updates",
			mcp.Description("Documentation updates made, as \"agent_type:file\" strings"),
			mcp.WithStringItems(),
		),
	), s.wrap(s.handleLearn))

	s.mcpServer.AddTool(mcp.NewTool(ToolRecommend,
		append([]mcp.ToolOption{
			mcp.WithDescription("Recommend up to three agent types that worked for similar past events."),
		}, eventOptions()...)...,
	), s.wrap(s.handleRecommend))

	s.mcpServer.AddTool(mcp.NewTool(ToolSummary,
		mcp.WithDescription("Summarize the learning store: event totals, success rate, most effective agents and most common patterns."),
	), s.wrap(s.handleSummary))

	s.mcpServer.AddTool(mcp.NewTool(ToolInsights,
		mcp.WithDescription("Show effectiveness and recent runs of one agent type."),
		mcp.WithString("agent_type",
			mcp.Description("Agent type, e.g. security_specialist"),
			mcp.Required(),
		),
	), s.wrap(s.handleInsights))

	s.mcpServer.AddTool(mcp.NewTool(ToolPatterns,
		mcp.WithDescription("List learned event patterns, most frequent first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of patterns to return (default: 10)"),
		),
	), s.wrap(s.handlePatterns))

	s.mcpServer.AddTool(mcp.NewTool(ToolStoreInfo,
		mcp.WithDescription("Show the active store, its backend and how much it holds. Read-only."),
	), s.wrap(s.handleStoreInfo))
}

type handler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// wrap adapts an internal handler to mcp-go.
func (s *Server) wrap(h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func errorResult(format string, a ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, a...), IsError: true}
}

// Internal handlers

func (s *Server) handleAnalyze(_ context.Context, args map[string]any) (*ToolResult, error) {
	ev, err := eventFromArgs(args)
	if err != nil {
		return errorResult("invalid event: %v", err), nil
	}

	ca := s.client.Analyze(ev)
	var sb strings.Builder
	sb.WriteString(s.client.DescribeAnalysis(ca))
	sb.WriteString("\n\n")
	writeJSON(&sb, ca)
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleGenerate(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ev, err := eventFromArgs(args)
	if err != nil {
		return errorResult("invalid event: %v", err), nil
	}

	gen, err := s.client.Generate(ctx, ev)
	if err != nil {
		return errorResult("generate failed: %v", err), nil
	}
	return &ToolResult{Content: formatGeneration(gen)}, nil
}

func (s *Server) handleLearn(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref, _ := args["ref"].(string)
	if ref == "" {
		return errorResult("ref is required"), nil
	}
	outcomeStr, _ := args["outcome"].(string)
	outcome := dialectic.Outcome(strings.ToLower(outcomeStr))
	if !outcome.IsValid() {
		return errorResult("invalid outcome %q: want success, partial or failure", outcomeStr), nil
	}

	updates, err := updatesFromArgs(args["updates"])
	if err != nil {
		return errorResult("invalid updates: %v", err), nil
	}

	if err := s.client.Learn(ctx, ref, outcome, updates); err != nil {
		return errorResult("learn failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Learned %s for %s (%d updates).", outcome, ref, len(updates))}, nil
}

func (s *Server) handleRecommend(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ev, err := eventFromArgs(args)
	if err != nil {
		return errorResult("invalid event: %v", err), nil
	}

	recs, err := s.client.Recommend(ctx, ev)
	if err != nil {
		return errorResult("recommend failed: %v", err), nil
	}
	if len(recs) == 0 {
		return &ToolResult{Content: "No similar past events yet."}, nil
	}

	var sb strings.Builder
	sb.WriteString("Recommended agents:\n")
	for i, r := range recs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, r)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleSummary(_ context.Context, _ map[string]any) (*ToolResult, error) {
	sum, err := s.client.Summary()
	if err != nil {
		return errorResult("summary failed: %v", err), nil
	}
	return &ToolResult{Content: formatSummary(sum)}, nil
}

func (s *Server) handleInsights(_ context.Context, args map[string]any) (*ToolResult, error) {
	agentType, _ := args["agent_type"].(string)
	if agentType == "" {
		return errorResult("agent_type is required"), nil
	}

	ins, err := s.client.Insights(agentType)
	if err != nil {
		return errorResult("insights failed: %v", err), nil
	}
	return &ToolResult{Content: formatInsights(ins)}, nil
}

// Formatting functions

func formatGeneration(gen *dialectic.Generation) string {
	var sb strings.Builder
	if len(gen.Specs) == 0 {
		fmt.Fprintf(&sb, "[%s] No agents generated.\n", gen.Ref)
	} else {
		fmt.Fprintf(&sb, "[%s] %d agents: %s\n\n", gen.Ref, len(gen.Specs), dialectic.SummarizeAgents(gen.Specs))
		for _, spec := range gen.Specs {
			fmt.Fprintf(&sb, "%s (%s)\n", spec.AgentType, spec.AgentID)
			fmt.Fprintf(&sb, "    Priority: %d  Confidence: %.0f%%  Duration: %s\n", spec.Priority, spec.Confidence*100, spec.EstimatedDuration)
			fmt.Fprintf(&sb, "    Reason: %s\n", spec.ContextReason)
			fmt.Fprintf(&sb, "    Targets: %s\n", strings.Join(spec.DocumentationTargets, ", "))
			if len(spec.Dependencies) > 0 {
				fmt.Fprintf(&sb, "    Depends on: %s\n", strings.Join(spec.Dependencies, ", "))
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Report the outcome with %s using ref %s.\n\n", ToolLearn, gen.Ref)
	writeJSON(&sb, gen.Specs)
	return sb.String()
}

func formatSummary(sum *dialectic.LearningSummary) string {
	var sb strings.Builder
	sb.WriteString("Learning summary:\n")
	fmt.Fprintf(&sb, "  Events: %d (%d successful, %d failed, %.1f%% success)\n",
		sum.TotalEvents, sum.SuccessfulUpdates, sum.FailedUpdates, sum.SuccessRate*100)
	fmt.Fprintf(&sb, "  Patterns learned: %d\n", sum.PatternsLearned)
	fmt.Fprintf(&sb, "  Log entries: %d\n", sum.LearningEventsLog)

	if len(sum.MostEffectiveAgents) > 0 {
		sb.WriteString("  Most effective agents:\n")
		for _, a := range sum.MostEffectiveAgents {
			fmt.Fprintf(&sb, "    - %s: %d successful updates over %d spawns\n", a.AgentType, a.SuccessfulUpdates, a.TotalSpawned)
		}
	}
	if len(sum.MostCommonPatterns) > 0 {
		sb.WriteString("  Most common patterns:\n")
		for _, p := range sum.MostCommonPatterns {
			fmt.Fprintf(&sb, "    - %s (%d)\n", p.Pattern, p.Count)
		}
	}
	return sb.String()
}

func formatInsights(ins *dialectic.AgentInsights) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", ins.AgentType)
	fmt.Fprintf(&sb, "  Spawned: %d\n", ins.TotalSpawned)
	fmt.Fprintf(&sb, "  Successful updates: %d\n", ins.SuccessfulUpdates)
	fmt.Fprintf(&sb, "  Average confidence: %.1f%%\n", ins.AverageConfidence*100)
	if ins.LastUsed != nil {
		fmt.Fprintf(&sb, "  Last used: %s\n", ins.LastUsed.Format("2006-01-02 15:04:05"))
	}
	if len(ins.RecentPerformance) > 0 {
		sb.WriteString("  Recent runs:\n")
		for _, r := range ins.RecentPerformance {
			fmt.Fprintf(&sb, "    - %s %s (%d updates)\n", r.Timestamp.Format("2006-01-02 15:04"), r.Outcome, r.UpdatesCount)
		}
	}
	return sb.String()
}

func writeJSON(sb *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	sb.WriteString("```json\n")
	sb.Write(data)
	sb.WriteString("\n```\n")
}

// Argument parsing

// eventFromArgs builds an event from tool arguments. Errors may be given as
// strings ("kind" or "kind:count") or objects with kind/type and count.
func eventFromArgs(args map[string]any) (dialectic.Event, error) {
	ev := dialectic.Event{
		Files: toStringSlice(args["files"]),
	}
	ev.Message, _ = args["message"].(string)

	raw, ok := args["errors"].([]any)
	if !ok {
		for _, s := range toStringSlice(args["errors"]) {
			rec, err := dialectic.ParseErrorRecord(s)
			if err != nil {
				return ev, err
			}
			ev.Errors = append(ev.Errors, rec)
		}
		return ev, nil
	}
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			rec, err := dialectic.ParseErrorRecord(v)
			if err != nil {
				return ev, err
			}
			ev.Errors = append(ev.Errors, rec)
		case map[string]any:
			data, _ := json.Marshal(v)
			var rec dialectic.ErrorRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return ev, fmt.Errorf("error record: %w", err)
			}
			ev.Errors = append(ev.Errors, rec)
		default:
			return ev, fmt.Errorf("error record: unsupported type %T", item)
		}
	}
	return ev, nil
}

// updatesFromArgs parses "agent_type:file" strings into documentation updates.
func updatesFromArgs(v any) ([]dialectic.DocumentationUpdate, error) {
	var out []dialectic.DocumentationUpdate
	for _, s := range toStringSlice(v) {
		agent, file, ok := strings.Cut(s, ":")
		if !ok || agent == "" || file == "" {
			return nil, fmt.Errorf("%q: want agent_type:file", s)
		}
		out = append(out, dialectic.DocumentationUpdate{
			File:  file,
			Type:  dialectic.UpdateUpdated,
			Agent: agent,
		})
	}
	return out, nil
}

// toStringSlice converts various array types to []string.
// Handles []any, []string, and nil.
func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}

	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
