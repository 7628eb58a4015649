package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wonny/aegis/consult/pkg/config"
	"github.com/wonny/aegis/consult/pkg/logger"
)

// DefaultSystemPrompt frames every payload as a request for one JSON signal
const DefaultSystemPrompt = "You are an options strategy analyst. " +
	"Answer with exactly one JSON object matching the requested signal schema and nothing else."

// ErrEmptyResponse is returned when the model answers without content
var ErrEmptyResponse = errors.New("evaluator returned no choices")

// OpenAI evaluates payloads with a chat completion model
// ⭐ SSOT: LLM 호출은 여기서만
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	system      string
	logger      *logger.Logger
}

// NewOpenAI creates an OpenAI-compatible evaluator.
// The SDK's automatic retries are disabled; retry policy belongs to the caller.
func NewOpenAI(cfg config.EvaluatorConfig, log *logger.Logger) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai evaluator")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		system:      DefaultSystemPrompt,
		logger:      log.WithField("evaluator", "openai"),
	}, nil
}

// Evaluate implements contracts.Evaluator
func (o *OpenAI) Evaluate(ctx context.Context, payload string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.system),
			openai.UserMessage(payload),
		},
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxTokens))
	}

	res, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	o.logger.WithFields(map[string]interface{}{
		"model":             res.Model,
		"prompt_tokens":     res.Usage.PromptTokens,
		"completion_tokens": res.Usage.CompletionTokens,
	}).Debug("Chat completion finished")

	return res.Choices[0].Message.Content, nil
}
