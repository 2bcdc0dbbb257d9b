// Package llm wraps the external LLM API behind a small capability-set
// interface: the intent-analysis, generation, and review roles all run
// over one client, differing only in the per-call options, so cheap and
// expensive models are configuration rather than separate types.
package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one chat turn, independent of any specific provider's wire shape.
type Message struct {
	Role    string
	Content string
}

// Options bounds a single completion call.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	N           int
}

// Client is the capability set every LLM role (Intent Analyzer, Response
// Generator, Reviewer) is expressed over. A single concrete client backs
// both roles; only the Options passed per-call differ.
type Client interface {
	// Complete runs one non-streaming completion, used by the Intent
	// Analyzer and the Reviewer.
	Complete(ctx context.Context, messages []Message, opts Options) (text string, promptTokens, completionTokens int, err error)

	// Stream runs one streaming completion, used by the Response
	// Generator. Each token is delivered to onToken as it arrives; the
	// call blocks until the stream completes, errors, or ctx is cancelled.
	Stream(ctx context.Context, messages []Message, opts Options, onToken func(string)) (promptTokens, completionTokens int, err error)
}

// OpenAIClient is the concrete capability-set implementation over an
// OpenAI-compatible endpoint.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient builds a Client bound to an OpenAI-compatible endpoint.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (c *OpenAIClient) Complete(
	ctx context.Context, messages []Message, opts Options,
) (string, int, int, error) {
	n := opts.N
	if n == 0 {
		n = 1
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		N:           n,
	})
	if err != nil {
		return "", 0, 0, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	}
	return resp.Choices[0].Message.Content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

func (c *OpenAIClient) Stream(
	ctx context.Context, messages []Message, opts Options, onToken func(string),
) (int, int, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		N:           1,
		Stream:      true,
	})
	if err != nil {
		return 0, 0, err
	}
	defer stream.Close()

	completionTokens := 0
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, completionTokens, err
		}
		if len(resp.Choices) > 0 {
			text := resp.Choices[0].Delta.Content
			if text != "" {
				completionTokens++
				onToken(text)
			}
		}
		select {
		case <-ctx.Done():
			return 0, completionTokens, ctx.Err()
		default:
		}
	}
	return 0, completionTokens, nil
}
