// Package mcp exposes Dialectic over the Model Context Protocol.
//
// This package offers two approaches:
//
// 1. Full MCP Server (server.go) - RECOMMENDED
//    Use NewServer() for a complete MCP server implementation using mcp-go
//    with stdio transport.
//
// 2. Registry Pattern (tools.go)
//    Use RegisterTools() when an agent framework already has its own MCP
//    infrastructure and only needs tool definitions and handlers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperengineering/dialectic"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Default     interface{}       `json:"default,omitempty"`
	Items       map[string]string `json:"items,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RegisterTools registers the generate, learn and recommend tools with a
// custom registry. Handlers return structured values rather than text.
func RegisterTools(registry Registry, client *dialectic.Client) {
	eventParams := func() Schema {
		return Schema{
			"files": {
				Type:        "array",
				Description: "Paths of the files changed by the event",
				Items:       map[string]string{"type": "string"},
			},
			"message": {
				Type:        "string",
				Description: "Commit message or description of the change",
			},
			"errors": {
				Type:        "array",
				Description: "Errors seen, as objects with kind and count",
				Items:       map[string]string{"type": "object"},
			},
		}
	}

	registry.Register(Tool{
		Name:        ToolGenerate,
		Description: "Generate ranked agent specs for a development event",
		Parameters:  eventParams(),
		Handler:     makeGenerateHandler(client),
	})

	registry.Register(Tool{
		Name:        ToolLearn,
		Description: "Record the outcome of a generated batch",
		Parameters: Schema{
			"ref": {
				Type:        "string",
				Description: "Batch reference (E1) or agent_id",
				Required:    true,
			},
			"outcome": {
				Type:        "string",
				Description: "Outcome of the batch",
				Required:    true,
				Enum: []string{
					string(dialectic.OutcomeSuccess),
					string(dialectic.OutcomePartial),
					string(dialectic.OutcomeFailure),
				},
			},
			"updates": {
				Type:        "array",
				Description: "Documentation updates made by the batch",
				Items:       map[string]string{"type": "object"},
			},
		},
		Handler: makeLearnHandler(client),
	})

	registry.Register(Tool{
		Name:        ToolRecommend,
		Description: "Recommend agent types that worked for similar past events",
		Parameters:  eventParams(),
		Handler:     makeRecommendHandler(client),
	})
}

func makeGenerateHandler(client *dialectic.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		var ev dialectic.Event
		if err := json.Unmarshal(rawParams, &ev); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		return client.Generate(ctx, ev)
	}
}

// learnParams represents the parameters for dialectic_learn.
type learnParams struct {
	Ref     string                          `json:"ref"`
	Outcome string                          `json:"outcome"`
	Updates []dialectic.DocumentationUpdate `json:"updates"`
}

// learnResult is returned by the registry learn handler.
type learnResult struct {
	Ref     string            `json:"ref"`
	Outcome dialectic.Outcome `json:"outcome"`
	Updates int               `json:"updates"`
}

func makeLearnHandler(client *dialectic.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		var params learnParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}

		if params.Ref == "" {
			return nil, fmt.Errorf("ref is required")
		}
		outcome := dialectic.Outcome(strings.ToLower(params.Outcome))
		if !outcome.IsValid() {
			return nil, fmt.Errorf("invalid outcome %q", params.Outcome)
		}

		if err := client.Learn(ctx, params.Ref, outcome, params.Updates); err != nil {
			return nil, err
		}
		return learnResult{Ref: params.Ref, Outcome: outcome, Updates: len(params.Updates)}, nil
	}
}

func makeRecommendHandler(client *dialectic.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		var ev dialectic.Event
		if err := json.Unmarshal(rawParams, &ev); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		recs, err := client.Recommend(ctx, ev)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []string{}
		}
		return recs, nil
	}
}
