package moderation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// TextModerator screens user-supplied text (titles, descriptions) before a
// video record is even created. It is a pre-filter, not a substitute for the
// full content scan.
type TextModerator interface {
	ScreenText(ctx context.Context, text string) ([]Flag, error)
}

// OpenAIModerator implements TextModerator with the OpenAI moderations
// endpoint.
type OpenAIModerator struct {
	client openai.Client
}

func NewOpenAIModerator(apiKey string) *OpenAIModerator {
	return &OpenAIModerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (m *OpenAIModerator) ScreenText(ctx context.Context, text string) ([]Flag, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("moderation: text screen failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("moderation: empty response from text screen")
	}

	result := resp.Results[0]
	if !result.Flagged {
		return nil, nil
	}

	var flags []Flag
	if result.Categories.SexualMinors {
		flags = append(flags, FlagIllegalContent)
	}
	if result.Categories.Sexual {
		flags = append(flags, FlagExplicitAdult)
	}
	if result.Categories.Violence || result.Categories.ViolenceGraphic {
		flags = append(flags, FlagViolence)
	}
	return flags, nil
}

// NopTextModerator skips the pre-filter. Used when no API key is configured.
type NopTextModerator struct{}

func (NopTextModerator) ScreenText(ctx context.Context, text string) ([]Flag, error) {
	return nil, nil
}
