//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package embedder defines the embedding client consumed by the query
// builder. It shares the network-boundary pattern of the other external
// clients: hard errors propagate, no internal retry.
package embedder

import "context"

// Embedder generates embedding vectors for texts.
type Embedder interface {
	// GetEmbedding generates an embedding vector for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)

	// GetEmbeddings generates one embedding vector per input text,
	// aligned by index with the input order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
}
