package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/KPKUBAN/kp-kuban-bot/internal/config"
)

// OpenAIClient turns raw article text into a short channel-style post.
type OpenAIClient struct {
	client openai.Client
	cfg    config.OpenAIConfig
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), cfg: cfg}
}

// Rewrite restyles the combined article text. Any API failure or empty
// completion is an error; the caller decides what to fall back to.
func (c *OpenAIClient) Rewrite(ctx context.Context, text string) (string, error) {
	if timeout := c.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(c.cfg.SystemPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(text),
					},
				},
			},
		},
		MaxTokens: openai.Int(c.cfg.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	styled := strings.TrimSpace(response.Choices[0].Message.Content)
	if styled == "" {
		return "", fmt.Errorf("empty completion from openai")
	}
	return styled, nil
}
