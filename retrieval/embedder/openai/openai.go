//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible embedder implementation.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/embedder"
)

// Verify that Embedder implements the embedder.Embedder interface.
var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the default embedding model.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions is the default embedding dimension for DefaultModel.
	DefaultDimensions = 1536

	// Model prefix for the text-embedding-3 series, the only series that
	// accepts an explicit dimensions parameter.
	textEmbedding3Prefix = "text-embedding-3"
)

// Embedder implements embedder.Embedder against the OpenAI embeddings API.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
	apiKey     string
	baseURL    string
}

// Option represents a functional option for configuring the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model to use.
func WithModel(model string) Option {
	return func(e *Embedder) {
		e.model = model
	}
}

// WithDimensions sets the number of dimensions for the embedding.
// Only honored by text-embedding-3 and later models.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) {
		e.dimensions = dimensions
	}
}

// WithAPIKey sets the API key. When unset the SDK falls back to the
// OPENAI_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) {
		e.apiKey = apiKey
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(e *Embedder) {
		e.baseURL = baseURL
	}
}

// New creates an OpenAI embedder with the given options.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		model:      DefaultModel,
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(e)
	}

	var clientOpts []option.RequestOption
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = openai.NewClient(clientOpts...)

	return e
}

// GetEmbedding implements the embedder.Embedder interface.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	request := e.newParams()
	request.Input = openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}

	response, err := e.client.Embeddings.New(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(response.Data) == 0 {
		log.Warn("received empty embedding response from API")
		return []float64{}, nil
	}
	return response.Data[0].Embedding, nil
}

// GetEmbeddings implements the embedder.Embedder interface. The returned
// vectors are aligned by index with the input texts.
func (e *Embedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	request := e.newParams()
	request.Input = openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}

	response, err := e.client.Embeddings.New(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts",
			len(response.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for _, item := range response.Data {
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}

func (e *Embedder) newParams() openai.EmbeddingNewParams {
	request := openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if strings.HasPrefix(e.model, textEmbedding3Prefix) && e.dimensions > 0 {
		request.Dimensions = openai.Int(int64(e.dimensions))
	}
	return request
}

// GetDimensions returns the configured embedding dimension.
func (e *Embedder) GetDimensions() int {
	return e.dimensions
}
