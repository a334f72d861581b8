package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/steward/internal/agent"
)

const (
	// defaultBedrockRegion is used when no region is configured.
	defaultBedrockRegion = "us-east-1"

	// defaultBedrockModel serves requests that do not name a model.
	defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
)

// BedrockProvider serves completions through AWS Bedrock's ConverseStream
// API, which normalizes the hosted model families behind one shape.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	region       string
}

// BedrockConfig configures NewBedrockProvider.
type BedrockConfig struct {
	// Region selects the AWS region. Defaults to defaultBedrockRegion.
	Region string

	// AccessKeyID and SecretAccessKey set static credentials. When empty,
	// the default chain applies: environment, shared config, IAM role.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// DefaultModel serves requests that do not name a model.
	// Defaults to defaultBedrockModel.
	DefaultModel string
}

// NewBedrockProvider builds a provider from config. Credential resolution
// is deferred to request time, so construction succeeds without AWS access.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = defaultBedrockRegion
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultBedrockModel
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		region:       cfg.Region,
	}, nil
}

// Name returns "bedrock".
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Models returns the Bedrock model IDs this provider accepts.
func (p *BedrockProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Name: "Claude 3.5 Sonnet v2 (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000},
		{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express", ContextSize: 8192},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B Instruct", ContextSize: 8192},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B Instruct", ContextSize: 32768},
		{ID: "cohere.command-r-plus-v1:0", Name: "Command R+", ContextSize: 128000},
	}
}

// SupportsTools reports that the Converse API accepts tool configurations.
func (p *BedrockProvider) SupportsTools() bool {
	return true
}

// Complete opens a ConverseStream request and returns a channel of chunks.
func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, NewProviderError("bedrock", req.Model, errors.New("client not configured"))
	}
	model := p.getModel(req.Model)

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: p.convertMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		input.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)), // #nosec G115 -- bounded by min above
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = p.convertTools(req.Tools)
	}

	stream, err := p.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

// processStream translates Converse events into chunks. Tool input JSON
// accumulates across deltas and is emitted as one ToolCall when its content
// block stops. The Done chunk is held until usage metadata arrives, which
// the service sends after the message stop event.
func (p *BedrockProvider) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolCall *agent.ToolCall
	var toolInput strings.Builder
	var inputTokens, outputTokens int
	stopped := false

	events := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return

		case event, ok := <-events:
			if !ok {
				if err := eventStream.Err(); err != nil {
					chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true}
					return
				}
				if toolCall != nil && toolCall.ID != "" {
					toolCall.Input = finalizeToolInput(&toolInput)
					chunks <- &agent.CompletionChunk{ToolCall: toolCall}
				}
				chunks <- &agent.CompletionChunk{
					Done:         true,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if start, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolCall = &agent.ToolCall{
						ID:   aws.ToString(start.Value.ToolUseId),
						Name: aws.ToString(start.Value.Name),
					}
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- &agent.CompletionChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if toolCall != nil {
					toolCall.Input = finalizeToolInput(&toolInput)
					chunks <- &agent.CompletionChunk{ToolCall: toolCall}
					toolCall = nil
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				stopped = true

			case *types.ConverseStreamOutputMemberMetadata:
				if usage := ev.Value.Usage; usage != nil {
					inputTokens = int(aws.ToInt32(usage.InputTokens))
					outputTokens = int(aws.ToInt32(usage.OutputTokens))
				}
				if stopped {
					chunks <- &agent.CompletionChunk{
						Done:         true,
						InputTokens:  inputTokens,
						OutputTokens: outputTokens,
					}
					return
				}
			}
		}
	}
}

func finalizeToolInput(builder *strings.Builder) json.RawMessage {
	input := builder.String()
	if input == "" {
		input = "{}"
	}
	builder.Reset()
	return json.RawMessage(input)
}

// convertMessages renders the transcript as Converse messages. The system
// prompt travels in the request's System field, so system entries are
// skipped. Tool results return inside user-role messages with their status
// marked when the execution failed.
func (p *BedrockProvider) convertMessages(messages []agent.CompletionMessage) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tr := range msg.ToolResults {
			block := types.ToolResultBlock{
				ToolUseId: aws.String(tr.ToolCallID),
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: tr.Content},
				},
			}
			if tr.IsError {
				block.Status = types.ToolResultStatusError
			}
			content = append(content, &types.ContentBlockMemberToolResult{Value: block})
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result
}

// convertTools renders tool definitions as a Converse tool configuration.
func (p *BedrockProvider) convertTools(tools []agent.Tool) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			schema = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		bedrockTools = append(bedrockTools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name()),
				Description: aws.String(tool.Description()),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

// wrapError normalizes SDK errors into *ProviderError. Smithy exposes the
// service exception name as an error code; the HTTP response error carries
// the status and AWS request ID.
func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError("bedrock", model, err)

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		providerErr = providerErr.WithStatus(respErr.HTTPStatusCode())
		if id := respErr.ServiceRequestID(); id != "" {
			providerErr = providerErr.WithRequestID(id)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithCode(apiErr.ErrorCode())
		if msg := apiErr.ErrorMessage(); msg != "" {
			providerErr = providerErr.WithMessage(msg)
		}
	}

	return providerErr
}

func (p *BedrockProvider) getModel(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}
