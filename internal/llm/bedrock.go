package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// bedrockConverseAPI is the subset of the Bedrock runtime client we call.
// Kept narrow so tests can substitute a fake.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient completes chat requests through the Bedrock Converse API.
type BedrockClient struct {
	api          bedrockConverseAPI
	defaultModel string
	logger       *logging.Logger
}

type BedrockOption func(*BedrockClient)

func WithBedrockLogger(logger *logging.Logger) BedrockOption {
	return func(c *BedrockClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewBedrockClient(api bedrockConverseAPI, defaultModel string, opts ...BedrockOption) *BedrockClient {
	if api == nil {
		panic("llm: bedrock api is required")
	}
	if defaultModel == "" {
		panic("llm: bedrock default model is required")
	}
	c := &BedrockClient{
		api:          api,
		defaultModel: defaultModel,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
	}

	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		input.System = append(input.System, &types.SystemContentBlockMemberText{Value: sys})
	}

	for _, msg := range req.Messages {
		role, err := bedrockRole(msg.Role)
		if err != nil {
			return Response{}, err
		}
		if msg.Role == ChatRoleSystem {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: msg.Content})
			continue
		}
		input.Messages = append(input.Messages, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: msg.Content},
			},
		})
	}

	cfg := &types.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
	}
	input.InferenceConfig = cfg

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock converse: %w", err)
	}

	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Text:       text,
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}

	c.logger.Debug("bedrock completion",
		"model", modelID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return resp, nil
}

func bedrockRole(role string) (types.ConversationRole, error) {
	switch role {
	case ChatRoleUser, ChatRoleTool:
		return types.ConversationRoleUser, nil
	case ChatRoleAssistant:
		return types.ConversationRoleAssistant, nil
	case ChatRoleSystem:
		// Caller routes system content into the system block; role value unused.
		return types.ConversationRoleUser, nil
	default:
		return "", fmt.Errorf("llm: unsupported chat role %q", role)
	}
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil || out.Output == nil {
		return "", fmt.Errorf("llm: bedrock converse returned no output")
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("llm: unexpected bedrock output type %T", out.Output)
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("llm: bedrock converse returned empty text")
	}
	return sb.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
