//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package lexical filters reranked rows by token overlap with the query.
//
// Semantic rerank scores can surface rows with no lexical overlap to the
// query at all; this stage is a cheap local sanity filter layered on top
// of the reranker, not a replacement for it.
package lexical

import (
	"context"
	"fmt"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
)

// Scorer computes lexical overlap scores for one row text against the raw
// query input. prior carries the row's rerank score when present.
type Scorer interface {
	Score(ctx context.Context, text string, input map[string]string, prior *float64) (tokenScore, weightedTokenScore float64, err error)
}

// Filter drops rows with zero token overlap, failing open: a source whose
// rows are all dropped keeps its original unfiltered set instead.
type Filter struct {
	scorer Scorer
}

// Option represents a functional option for configuring the Filter.
type Option func(*Filter)

// NewFilter creates a lexical filter backed by the given scorer.
func NewFilter(scorer Scorer, opts ...Option) *Filter {
	f := &Filter{scorer: scorer}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply scores every row, storing the scores on the rows, and returns the
// rows whose token score is non-zero.
//
// Fail-open invariant: when filtering would empty a source that had
// candidates, the original unfiltered set is returned unchanged. Lexical
// filtering must never zero out a source on its own.
func (f *Filter) Apply(ctx context.Context, rows []*document.Row, input map[string]string) ([]*document.Row, error) {
	if len(rows) == 0 {
		return rows, nil
	}

	kept := make([]*document.Row, 0, len(rows))
	for _, row := range rows {
		prior := row.Score
		tokenScore, weighted, err := f.scorer.Score(ctx, row.Text, input, &prior)
		if err != nil {
			return nil, fmt.Errorf("lexical scoring failed: %w", err)
		}
		row.TokenScore = tokenScore
		row.WeightedTokenScore = weighted
		if tokenScore != 0 {
			kept = append(kept, row)
		}
	}

	if len(kept) == 0 {
		log.Debugf("lexical filter would empty %d row(s), keeping unfiltered set", len(rows))
		return rows, nil
	}
	return kept, nil
}
