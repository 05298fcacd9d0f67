package evaluation

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// completer is the narrow slice of the LLM API the evaluators need. Tests
// substitute their own implementation.
type completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// sdkCompleter backs completer with the official Anthropic SDK.
type sdkCompleter struct {
	client sdk.Client
	model  string
}

func newSDKCompleter(apiKey, model string) *sdkCompleter {
	return &sdkCompleter{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *sdkCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1024,
		System: []sdk.TextBlockParam{
			{Text: system},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
