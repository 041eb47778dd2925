package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"vidsight/internal/config"
	"vidsight/internal/step"
)

func newOpenAIClient(cfg *config.Config) openai.Client {
	// The orchestrator owns retry policy, so SDK-level retries are disabled.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAI.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.OpenAI.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return openai.NewClient(opts...)
}

// classifyOpenAIError maps an OpenAI SDK failure onto a step sentinel. An
// explicit insufficient-quota code means retrying cannot help; a plain 429 is
// worth waiting out.
func classifyOpenAIError(stepName, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return step.Wrap(step.ErrTimeout, stepName, operation, "request deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 && apiErr.Code == "insufficient_quota":
			return step.Wrap(step.ErrQuotaExhausted, stepName, operation, "API quota exhausted", err)
		case apiErr.StatusCode == 429:
			return step.Wrap(step.ErrRateLimited, stepName, operation, "rate limited", err)
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 404:
			return step.Wrap(step.ErrValidation, stepName, operation, "request rejected", err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return step.Wrap(step.ErrValidation, stepName, operation, "authorization failed", err)
		case apiErr.StatusCode >= 500:
			return step.Wrap(step.ErrTransient, stepName, operation, "upstream unavailable", err)
		}
	}
	return step.Wrap(step.ErrTransient, stepName, operation, "request failed", err)
}

// completeJSON runs one chat completion that must return a JSON object and
// unmarshals it into out. A malformed model response is treated as transient
// since a retry frequently produces valid output.
func completeJSON(ctx context.Context, client openai.Client, model, stepName, prompt string, out any) error {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classifyOpenAIError(stepName, "chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return step.Wrap(step.ErrTransient, stepName, "chat completion", "no choices returned", nil)
	}

	content := completion.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return step.Wrap(step.ErrTransient, stepName, "chat completion", "model returned malformed JSON", err)
	}
	return nil
}
