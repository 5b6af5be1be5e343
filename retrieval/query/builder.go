//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package query

import (
	"context"
	"fmt"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/embedder"
)

// Builder derives fingerprinted Query variants from the raw request input.
type Builder struct {
	embedder embedder.Embedder
}

// Option represents a functional option for configuring the Builder.
type Option func(*Builder)

// WithEmbedder sets an embedder used to attach an embedding vector to
// every built query variant. When unset, Query.Embedding stays nil.
func WithEmbedder(e embedder.Embedder) Option {
	return func(b *Builder) {
		b.embedder = e
	}
}

// NewBuilder creates a query builder with the given options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs one Query per recognized variant key that is present
// and non-empty in the input mapping. Absent optional variants are simply
// skipped; building itself has no failure modes, only the optional
// embedding call can fail.
func (b *Builder) Build(ctx context.Context, input map[string]string) (map[string]*Query, error) {
	queries := make(map[string]*Query, len(variantKeys))
	var (
		order    []string
		contents []string
	)
	for _, vk := range variantKeys {
		content, ok := input[vk.key]
		if !ok || content == "" {
			continue
		}

		q := &Query{
			Content: content,
			Variant: vk.variant,
		}
		// The origin variant fingerprints the whole input mapping, the
		// other variants only their own text (see fingerprintInput).
		if vk.variant == VariantOrigin {
			q.Fingerprint = fingerprintInput(input)
		} else {
			q.Fingerprint = Fingerprint(content)
		}

		queries[vk.key] = q
		order = append(order, vk.key)
		contents = append(contents, content)
	}

	if b.embedder != nil && len(order) > 0 {
		embeddings, err := b.embedder.GetEmbeddings(ctx, contents)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query variants: %w", err)
		}
		if len(embeddings) != len(order) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d queries",
				len(embeddings), len(order))
		}
		for i, key := range order {
			queries[key].Embedding = embeddings[i]
		}
	}

	log.Debugf("built %d query variant(s)", len(queries))
	return queries, nil
}
