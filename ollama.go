package dialectic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.1"

// OllamaProposer asks a local Ollama model for the agent list.
type OllamaProposer struct {
	client *ollama.Client
	model  string
	logger *Logger
}

// NewOllamaProposer creates a proposer talking to host. An empty host falls
// back to OLLAMA_HOST and then to the Ollama default.
func NewOllamaProposer(host, model string, httpClient *http.Client, logger *Logger) (*OllamaProposer, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var client *ollama.Client
	if host == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProposerUnavailable, err)
		}
		client = c
	} else {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		u, err := url.Parse(host)
		if err != nil {
			return nil, &ValidationError{Field: "OllamaHost", Message: err.Error()}
		}
		client = ollama.NewClient(u, httpClient)
	}

	return &OllamaProposer{client: client, model: model, logger: logger}, nil
}

// Propose implements AgentProposer.
func (p *OllamaProposer) Propose(ctx context.Context, summary string) (string, error) {
	stream := false
	req := &ollama.ChatRequest{
		Model: p.model,
		Messages: []ollama.Message{
			{Role: "system", Content: ProposerSystemPrompt},
			{Role: "user", Content: summary},
		},
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Options: map[string]any{
			"temperature": 0.1,
			"top_p":       0.9,
		},
	}

	var out strings.Builder
	err := p.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		out.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: ollama chat: %w", ErrProposerUnavailable, err)
	}

	p.logger.Debug("ollama proposal received", logrus.Fields{
		"model": p.model,
		"bytes": out.Len(),
	})
	return out.String(), nil
}

// Model returns the model name the proposer asks.
func (p *OllamaProposer) Model() string {
	return p.model
}
