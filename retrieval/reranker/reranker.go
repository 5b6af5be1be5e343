//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package reranker scores retrieved rows against the query through an
// external rerank service and keeps the top K per source.
package reranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
)

// DefaultTopK is the number of rows kept per source after reranking.
const DefaultTopK = 10

// Client is the rerank service client. Scores are aligned by index with
// the input documents.
type Client interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// ThresholdClient is an optional client variant that only returns entries
// scoring above a cutoff. Indexes refer to the input document order.
type ThresholdClient interface {
	ScoreAboveThreshold(ctx context.Context, query string, docs []string, threshold float64) (indexes []int, scores []float64, err error)
}

// Reranker attaches rerank scores to rows and keeps the top K.
type Reranker struct {
	client       Client
	topK         int
	threshold    float64
	useThreshold bool
}

// Option represents a functional option for configuring the Reranker.
type Option func(*Reranker)

// WithTopK sets how many rows survive per source. Non-positive values
// fall back to the default.
func WithTopK(k int) Option {
	return func(r *Reranker) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithScoreThreshold drops rows scoring at or below threshold before the
// top-K cut. Takes effect only when the client implements ThresholdClient;
// other clients score every row as usual.
func WithScoreThreshold(threshold float64) Option {
	return func(r *Reranker) {
		r.threshold = threshold
		r.useThreshold = true
	}
}

// New creates a reranker backed by the given client.
func New(client Client, opts ...Option) *Reranker {
	r := &Reranker{
		client: client,
		topK:   DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores rows against the query, overwrites each row's Score field
// and returns the rows re-ordered by descending score, truncated to top K.
// With a score threshold configured and a ThresholdClient, rows scoring at
// or below the threshold are dropped before the cut. A client failure is a
// hard error; no fallback ordering is attempted.
func (r *Reranker) Rerank(ctx context.Context, query string, rows []*document.Row) ([]*document.Row, error) {
	if len(rows) == 0 {
		return rows, nil
	}

	docs := make([]string, len(rows))
	for i, row := range rows {
		docs[i] = row.Text
	}

	var ranked []*document.Row
	if tc, ok := r.client.(ThresholdClient); ok && r.useThreshold {
		indexes, scores, err := tc.ScoreAboveThreshold(ctx, query, docs, r.threshold)
		if err != nil {
			return nil, fmt.Errorf("rerank scoring failed: %w", err)
		}
		if len(indexes) != len(scores) {
			return nil, fmt.Errorf("rerank service returned %d scores for %d indexes",
				len(scores), len(indexes))
		}
		ranked = make([]*document.Row, 0, len(indexes))
		for i, idx := range indexes {
			if idx < 0 || idx >= len(rows) {
				return nil, fmt.Errorf("rerank service returned index %d out of range for %d rows",
					idx, len(rows))
			}
			row := rows[idx]
			row.Score = scores[i]
			ranked = append(ranked, row)
		}
	} else {
		scores, err := r.client.Score(ctx, query, docs)
		if err != nil {
			return nil, fmt.Errorf("rerank scoring failed: %w", err)
		}
		if len(scores) != len(rows) {
			return nil, fmt.Errorf("rerank service returned %d scores for %d rows",
				len(scores), len(rows))
		}
		ranked = make([]*document.Row, len(rows))
		for i, row := range rows {
			row.Score = scores[i]
			ranked[i] = row
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked, nil
}
