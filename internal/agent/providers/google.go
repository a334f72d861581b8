package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/haasonsaas/steward/internal/agent"
)

// defaultGoogleModel serves requests that do not name a model.
const defaultGoogleModel = "gemini-2.0-flash"

// GoogleProvider serves completions through the Gemini API using the Google
// Gen AI SDK's streaming iterator.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
}

// GoogleConfig configures NewGoogleProvider.
type GoogleConfig struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// DefaultModel serves requests that do not name a model.
	// Defaults to defaultGoogleModel.
	DefaultModel string
}

// NewGoogleProvider builds a provider from config.
func NewGoogleProvider(config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultGoogleModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "google".
func (p *GoogleProvider) Name() string {
	return "google"
}

// Models returns the Gemini models this provider accepts.
func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1000000},
	}
}

// SupportsTools reports that Gemini models accept function declarations.
func (p *GoogleProvider) SupportsTools() bool {
	return true
}

// Complete opens a streaming generateContent request and returns a channel
// of chunks.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, NewProviderError("google", req.Model, errors.New("client not configured"))
	}
	model := p.getModel(req.Model)
	contents := p.convertMessages(req.Messages)
	config := p.buildConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)
		stream := p.client.Models.GenerateContentStream(ctx, model, contents, config)
		inputTokens, outputTokens, err := p.processStream(ctx, stream, chunks)
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true}
			return
		}
		chunks <- &agent.CompletionChunk{
			Done:         true,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}
	}()
	return chunks, nil
}

// processStream drains the response iterator into chunks and returns the
// token usage reported by the final responses. Gemini does not assign tool
// call IDs, so each function call gets a synthesized one.
func (p *GoogleProvider) processStream(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], chunks chan<- *agent.CompletionChunk) (int, int, error) {
	var inputTokens, outputTokens int

	for resp, err := range stream {
		if ctx.Err() != nil {
			return inputTokens, outputTokens, ctx.Err()
		}
		if err != nil {
			return inputTokens, outputTokens, err
		}
		if resp == nil {
			continue
		}

		if usage := resp.UsageMetadata; usage != nil {
			if usage.PromptTokenCount > 0 {
				inputTokens = int(usage.PromptTokenCount)
			}
			if usage.CandidatesTokenCount > 0 {
				outputTokens = int(usage.CandidatesTokenCount)
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					chunks <- &agent.CompletionChunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					input, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						input = []byte(`{}`)
					}
					chunks <- &agent.CompletionChunk{ToolCall: &agent.ToolCall{
						ID:    newCallID(),
						Name:  part.FunctionCall.Name,
						Input: input,
					}}
				}
			}
		}
	}

	return inputTokens, outputTokens, nil
}

// convertMessages renders the transcript as Gemini contents. The system
// prompt travels as a config-level system instruction, so system entries are
// skipped. Tool results return to the model as function responses inside
// user-role contents.
func (p *GoogleProvider) convertMessages(messages []agent.CompletionMessage) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			args := map[string]any{}
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: tc.Name,
					Args: args,
				},
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{
					"result": tr.Content,
					"error":  tr.IsError,
				}
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     getToolNameFromID(tr.ToolCallID, messages),
					Response: response,
				},
			})
		}
		if len(parts) == 0 {
			continue
		}

		result = append(result, &genai.Content{Role: role, Parts: parts})
	}
	return result
}

// getToolNameFromID recovers the tool name for a result by scanning the
// transcript for the call that produced it. The assistant message carrying
// the call always precedes the result message.
func getToolNameFromID(id string, messages []agent.CompletionMessage) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == id {
				return tc.Name
			}
		}
	}
	return ""
}

// newCallID synthesizes a tool call ID; Gemini does not assign one.
func newCallID() string {
	return "call_" + uuid.NewString()
}

func (p *GoogleProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		config.MaxOutputTokens = int32(maxTokens) // #nosec G115 -- bounded by min above
	}
	if len(req.Tools) > 0 {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

// convertTools renders tool definitions as a single genai.Tool holding one
// function declaration per tool.
func (p *GoogleProvider) convertTools(tools []agent.Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			schema = map[string]any{"type": "object"}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  geminiSchema(schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// geminiSchema converts a JSON Schema fragment into Gemini's typed schema
// tree. Gemini spells type names in uppercase.
func geminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		out.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				out.Properties[name] = geminiSchema(sub)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, v := range required {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = geminiSchema(items)
	}
	return out
}

// wrapError normalizes SDK errors into *ProviderError. The SDK folds HTTP
// failures into error text, so the status is sniffed from the message.
func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError("google", model, err)
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "resource_exhausted"):
		providerErr = providerErr.WithStatus(429)
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthenticated"):
		providerErr = providerErr.WithStatus(401)
	case strings.Contains(msg, "403"), strings.Contains(msg, "permission denied"):
		providerErr = providerErr.WithStatus(403)
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		providerErr = providerErr.WithStatus(404)
	case strings.Contains(msg, "500"), strings.Contains(msg, "internal error"):
		providerErr = providerErr.WithStatus(500)
	case strings.Contains(msg, "503"), strings.Contains(msg, "unavailable"):
		providerErr = providerErr.WithStatus(503)
	}
	return providerErr
}

func (p *GoogleProvider) getModel(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}
