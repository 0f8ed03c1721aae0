package search

import (
	"context"
	"errors"
	"fmt"

	"devspace-backend/errs"
	"devspace-backend/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAI embeds text and completes ranking prompts through an
// OpenAI-compatible API.
type OpenAI struct {
	client         openai.Client
	embeddingModel string
	chatModel      string
}

func NewOpenAI(baseURL, apiKey, embeddingModel, chatModel string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{
		client:         openai.NewClient(opts...),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}
}

// Embed embeds every input and returns the mean vector.
func (o *OpenAI) Embed(ctx context.Context, inputs []string) ([]float64, error) {
	if len(inputs) == 0 {
		return nil, errs.ErrInvalidArgument
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		log.Logger.Error("embedding request failed", zap.Int("inputs", len(inputs)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbedding, err)
	}

	vectors := make([][]float64, 0, len(resp.Data))
	for _, d := range resp.Data {
		vectors = append(vectors, d.Embedding)
	}

	return Mean(vectors), nil
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Mean averages vectors component-wise. Vectors shorter than the first are ignored.
func Mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	mean := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		n++
	}
	for i := range mean {
		mean[i] /= float64(n)
	}

	return mean
}
