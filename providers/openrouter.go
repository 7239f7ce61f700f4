package providers

import (
	"context"
	"io"
	"net/http"
	"strings"

	openrouter "github.com/revrost/go-openrouter"
)

// OpenRouterProvider implements the Provider interface for OpenRouter's
// unified API, which fronts 100+ models from dozens of upstream providers
// behind a single OpenAI-compatible endpoint.
type OpenRouterProvider struct {
	Base
	client *openrouter.Client
}

// NewOpenRouter creates a new OpenRouter provider. The optional baseURL
// parameter allows pointing at a compatible proxy (pass "" for the default).
func NewOpenRouter(apiKey string, baseURL string) (*OpenRouterProvider, error) {
	resolvedBase := "https://openrouter.ai/api/v1"
	var client *openrouter.Client
	if baseURL != "" {
		resolvedBase = baseURL
		cfg := openrouter.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		client = openrouter.NewClientWithConfig(cfg)
	} else {
		client = openrouter.NewClient(apiKey)
	}
	return &OpenRouterProvider{
		Base:   Base{name: "openrouter", apiKey: apiKey, baseURL: resolvedBase},
		client: client,
	}, nil
}

// SupportsModel returns true for any "vendor/model" slug — OpenRouter routes
// by the model string itself and rejects unknown ones upstream.
func (p *OpenRouterProvider) SupportsModel(model string) bool {
	return strings.Contains(model, "/")
}

// SupportedModels returns a representative static list; the full catalog of
// 100+ models is fetched live via DiscoverModels.
func (p *OpenRouterProvider) SupportedModels() []string {
	return []string{
		"openai/gpt-4o",
		"anthropic/claude-3.5-sonnet",
		"google/gemini-pro-1.5",
		"meta-llama/llama-3.1-70b-instruct",
	}
}

// Models returns model information for the representative static list.
func (p *OpenRouterProvider) Models() []ModelInfo {
	return ModelsFromList(p.name, p.SupportedModels())
}

// DiscoverModels fetches the live model catalog from OpenRouter's
// OpenAI-compatible /models endpoint.
func (p *OpenRouterProvider) DiscoverModels(ctx context.Context) ([]ModelInfo, error) {
	return discoverOpenAICompatibleModels(ctx, http.DefaultClient, p.baseURL+"/models", p.apiKey, p.name)
}

func buildOpenRouterMessages(msgs []Message) []openrouter.ChatCompletionMessage {
	out := make([]openrouter.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, openrouter.ChatCompletionMessage{
			Role:    openRouterRole(msg.Role),
			Content: openrouter.Content{Text: msg.Content},
		})
	}
	return out
}

func openRouterRole(role string) string {
	switch role {
	case RoleUser:
		return openrouter.ChatMessageRoleUser
	case RoleAssistant:
		return openrouter.ChatMessageRoleAssistant
	case RoleSystem:
		return openrouter.ChatMessageRoleSystem
	case RoleTool:
		return openrouter.ChatMessageRoleTool
	default:
		return openrouter.ChatMessageRoleUser
	}
}

func applyOpenRouterParams(req *openrouter.ChatCompletionRequest, r Request) {
	if r.Temperature != nil {
		req.Temperature = float32(*r.Temperature)
	}
	if r.TopP != nil {
		req.TopP = float32(*r.TopP)
	}
	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	if r.PresencePenalty != nil {
		req.PresencePenalty = float32(*r.PresencePenalty)
	}
	if r.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*r.FrequencyPenalty)
	}
	if len(r.Stop) > 0 {
		req.Stop = r.Stop
	}
	if r.User != "" {
		req.User = r.User
	}
	// Route through OpenRouter's own fallback routing as a second line of
	// defense behind this gateway's own selector/failover logic.
	req.Route = "fallback"
}

// Complete sends a chat completion request to OpenRouter.
func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	orReq := openrouter.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildOpenRouterMessages(req.Messages),
	}
	applyOpenRouterParams(&orReq, req)

	completion, err := p.client.CreateChatCompletion(ctx, orReq)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ID:       completion.ID,
		Model:    completion.Model,
		Provider: p.name,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	for i, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, Choice{
			Index: i,
			Message: Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content.Text,
			},
			FinishReason: string(choice.FinishReason),
		})
	}
	return resp, nil
}

// CompleteStream sends a streaming chat completion request to OpenRouter.
func (p *OpenRouterProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	orReq := openrouter.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildOpenRouterMessages(req.Messages),
		Stream:   true,
	}
	applyOpenRouterParams(&orReq, req)

	stream, err := p.client.CreateChatCompletionStream(ctx, orReq)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if err != io.EOF {
					ch <- StreamChunk{Error: err}
				}
				return
			}
			sc := StreamChunk{ID: chunk.ID, Model: chunk.Model}
			for _, c := range chunk.Choices {
				sc.Choices = append(sc.Choices, StreamChoice{
					Index: c.Index,
					Delta: MessageDelta{
						Role:    c.Delta.Role,
						Content: c.Delta.Content,
					},
					FinishReason: string(c.FinishReason),
				})
			}
			ch <- sc
		}
	}()

	return ch, nil
}
