package providers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/genai"
)

// VertexProvider implements the Provider interface for Gemini models served
// through Google Cloud Vertex AI (as opposed to the public Gemini API).
type VertexProvider struct {
	Base
	client   *genai.Client
	project  string
	location string
}

// VertexOAuthConfig carries OAuth2 client-credentials parameters for
// fronting Vertex AI with a third-party identity provider (e.g. a workload
// identity broker) instead of Google's own Application Default Credentials.
// Leave it nil to use ADC.
type VertexOAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewVertex creates a new Vertex AI provider. project and location identify
// the GCP project/region hosting the model endpoint. When oauth is nil,
// credentials are resolved the usual way (ADC, service account, etc.) by
// the underlying SDK; when set, the client authenticates via an OAuth2
// client-credentials grant instead.
func NewVertex(ctx context.Context, project, location string, oauth *VertexOAuthConfig) (*VertexProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex: project is required")
	}
	if location == "" {
		location = "us-central1"
	}

	cfg := &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if oauth != nil {
		ccCfg := clientcredentials.Config{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			TokenURL:     oauth.TokenURL,
			Scopes:       oauth.Scopes,
		}
		cfg.HTTPClient = ccCfg.Client(ctx)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex: create client: %w", err)
	}
	return &VertexProvider{
		Base:     Base{name: "vertex", baseURL: fmt.Sprintf("https://%s-aiplatform.googleapis.com", location)},
		client:   client,
		project:  project,
		location: location,
	}, nil
}

// SupportedModels returns well-known Gemini model ids served via Vertex.
func (p *VertexProvider) SupportedModels() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
		"gemini-1.5-flash-8b",
	}
}

// SupportsModel returns true for any "gemini-" prefixed model id.
func (p *VertexProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}

// Models returns model information for the known Gemini model ids.
func (p *VertexProvider) Models() []ModelInfo {
	return ModelsFromList(p.name, p.SupportedModels())
}

func vertexRole(role string) string {
	if role == RoleAssistant {
		return "model"
	}
	return "user"
}

// buildVertexContents converts gateway messages to genai.Content, pulling
// any system message out into a separate system instruction since Vertex
// (like the public Gemini API) does not accept a "system" role turn.
func buildVertexContents(msgs []Message) (contents []*genai.Content, systemInstruction *genai.Content) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  vertexRole(m.Role),
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents, systemInstruction
}

func buildVertexConfig(req Request, systemInstruction *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}
	return cfg
}

// Complete sends a generateContent request to Vertex AI.
func (p *VertexProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	contents, sys := buildVertexContents(req.Messages)
	cfg := buildVertexConfig(req, sys)

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex: generate content: %w", err)
	}

	resp := &Response{
		Model:    req.Model,
		Provider: p.name,
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	for i, cand := range result.Candidates {
		var content string
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				content += part.Text
			}
		}
		resp.Choices = append(resp.Choices, Choice{
			Index:        i,
			Message:      Message{Role: RoleAssistant, Content: content},
			FinishReason: string(cand.FinishReason),
		})
	}
	return resp, nil
}

// CompleteStream sends a streaming generateContent request to Vertex AI.
func (p *VertexProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	contents, sys := buildVertexContents(req.Messages)
	cfg := buildVertexConfig(req, sys)

	iter := p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for result, err := range iter {
			if err != nil {
				ch <- StreamChunk{Error: fmt.Errorf("vertex: stream: %w", err)}
				return
			}
			sc := StreamChunk{Model: req.Model}
			for i, cand := range result.Candidates {
				var content string
				if cand.Content != nil {
					for _, part := range cand.Content.Parts {
						content += part.Text
					}
				}
				sc.Choices = append(sc.Choices, StreamChoice{
					Index:        i,
					Delta:        MessageDelta{Content: content},
					FinishReason: string(cand.FinishReason),
				})
			}
			ch <- sc
		}
	}()

	return ch, nil
}
