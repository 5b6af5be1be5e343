//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package retrieval implements the multi-source document retrieval,
// ranking and citation-construction pipeline.
//
// A Pipeline run walks a fixed state machine:
//
//	QueryBuilt -> Retrieved -> [FaqTerminal | DocRanked -> Cited -> Formatted] -> Merged
//
// All stages communicate through one per-request Context passed by
// reference; network calls (fan-out, rerank, lexical scoring, FAQ
// ranking, embedding) are the only suspension points.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/cite"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/format"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/lexical"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/reranker"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/source"
	"github.com/kweaver-ai/kweaver-sub002/telemetry"
)

// Pipeline sequences query building, retrieval fan-out, the FAQ fast
// path, ranking, citation grouping and result formatting.
type Pipeline struct {
	builder      *query.Builder
	fanout       *source.Fanout
	preprocessor Preprocessor
	reranker     *reranker.Reranker
	lexical      *lexical.Filter
	grouper      *cite.Grouper
	formatter    *format.Formatter
	faqRanker    faq.Ranker
	faqFormatter *faq.Formatter

	citationCounter metric.Int64Counter
}

// Option represents a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithQueryBuilder sets the query builder.
func WithQueryBuilder(b *query.Builder) Option {
	return func(p *Pipeline) {
		p.builder = b
	}
}

// WithFanout sets the retrieval fan-out.
func WithFanout(f *source.Fanout) Option {
	return func(p *Pipeline) {
		p.fanout = f
	}
}

// WithPreprocessor sets the pre-process sub-stage.
func WithPreprocessor(pp Preprocessor) Option {
	return func(p *Pipeline) {
		p.preprocessor = pp
	}
}

// WithReranker sets the rerank sub-stage. When unset, rows keep their
// retrieval order and scores.
func WithReranker(r *reranker.Reranker) Option {
	return func(p *Pipeline) {
		p.reranker = r
	}
}

// WithLexicalFilter sets the lexical filter sub-stage.
func WithLexicalFilter(f *lexical.Filter) Option {
	return func(p *Pipeline) {
		p.lexical = f
	}
}

// WithGrouper sets the citation grouper.
func WithGrouper(g *cite.Grouper) Option {
	return func(p *Pipeline) {
		p.grouper = g
	}
}

// WithFormatter sets the result formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(p *Pipeline) {
		p.formatter = f
	}
}

// WithFAQRanker sets the FAQ ranker. When unset, FAQ candidates are
// ignored and the fast path never runs.
func WithFAQRanker(r faq.Ranker) Option {
	return func(p *Pipeline) {
		p.faqRanker = r
	}
}

// WithFAQFormatter sets the FAQ formatter.
func WithFAQFormatter(f *faq.Formatter) Option {
	return func(p *Pipeline) {
		p.faqFormatter = f
	}
}

// New creates a pipeline with the given options. Components not supplied
// fall back to in-process defaults; only the fan-out is mandatory for a
// useful pipeline and defaults to an empty one.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.builder == nil {
		p.builder = query.NewBuilder()
	}
	if p.fanout == nil {
		p.fanout = source.NewFanout()
	}
	if p.preprocessor == nil {
		p.preprocessor = NewDedupPreprocessor()
	}
	if p.lexical == nil {
		p.lexical = lexical.NewFilter(lexical.NewOverlapScorer())
	}
	if p.grouper == nil {
		p.grouper = cite.NewGrouper()
	}
	if p.formatter == nil {
		p.formatter = format.NewFormatter()
	}
	if p.faqFormatter == nil {
		p.faqFormatter = faq.NewFormatter()
	}

	counter, err := telemetry.Meter.Int64Counter("kweaver.retrieval.citations")
	if err != nil {
		log.Warnf("failed to create citation counter: %v", err)
	}
	p.citationCounter = counter

	return p
}

// Search runs the full pipeline for one request and returns the merged,
// score-sorted item list. A request with no viable evidence returns an
// empty list, never an error; errors only come from external services.
func (p *Pipeline) Search(ctx context.Context, rc *Context) ([]*format.Item, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "retrieval.search",
		trace.WithAttributes(attribute.String("request.id", rc.RequestID)))
	defer span.End()

	queries, err := p.builder.Build(ctx, rc.Input)
	if err != nil {
		return nil, fmt.Errorf("query build failed: %w", err)
	}
	rc.ProcessedQueries = queries

	rows, tags, faqRows, err := p.fanout.Retrieve(ctx, rc.DataSources, rc.ProcessedQueries, rc.Headers)
	if err != nil {
		return nil, fmt.Errorf("retrieval fan-out failed: %w", err)
	}
	rc.RawResults = rows
	rc.SourceTags = tags
	rc.FaqCandidates = faqRows

	if len(rc.FaqCandidates) > 0 && p.faqRanker != nil {
		terminal, err := p.faqStage(ctx, rc)
		if err != nil {
			return nil, err
		}
		if terminal {
			log.Debugf("request %s answered by FAQ fast path", rc.RequestID)
			return rc.FaqFormattedOutput, nil
		}
	}

	// Presence check, not emptiness: an empty-but-present result set
	// still runs the ranking branch and simply produces no citations.
	if rc.RawResults != nil {
		if err := p.rankStage(ctx, rc); err != nil {
			return nil, err
		}
		p.citeStage(ctx, rc)
		// Citations leave the grouper in ranked order per source; the
		// formatter relies on that and prunes on the first miss.
		rc.FormattedOutput = p.formatter.Format(rc.Citations)
	}

	merged := make([]*format.Item, 0, len(rc.FormattedOutput)+len(rc.FaqFormattedOutput))
	merged = append(merged, rc.FormattedOutput...)
	merged = append(merged, rc.FaqFormattedOutput...)
	if len(merged) == 0 {
		return merged, nil
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged, nil
}

// faqStage ranks and formats the FAQ candidates. It reports whether the
// ranker is confident enough to make the FAQ output the terminal result.
func (p *Pipeline) faqStage(ctx context.Context, rc *Context) (bool, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "retrieval.faq")
	defer span.End()

	ranked, confident, err := p.faqRanker.Rank(ctx, rc.FaqCandidates)
	if err != nil {
		return false, fmt.Errorf("faq ranking failed: %w", err)
	}
	rc.FaqCandidates = ranked
	rc.FaqIsConfident = confident
	rc.FaqFormattedOutput = p.faqFormatter.Format(ranked)
	return confident, nil
}

// rankStage sequences pre-process, rerank and the lexical filter. Each
// sub-stage consumes the previous one's per-source row sets and replaces
// them in the pipeline context.
func (p *Pipeline) rankStage(ctx context.Context, rc *Context) error {
	ctx, span := telemetry.Tracer.Start(ctx, "retrieval.rank")
	defer span.End()

	rough, err := p.preprocessor.Process(ctx, rc.RawResults)
	if err != nil {
		return fmt.Errorf("pre-process failed: %w", err)
	}
	rc.RoughRanked = rough

	if p.reranker != nil {
		rankQuery := p.rankQuery(rc)
		reranked := make(map[string][]*document.Row, len(rc.RoughRanked))
		for _, id := range sortedKeys(rc.RoughRanked) {
			rows, err := p.reranker.Rerank(ctx, rankQuery, rc.RoughRanked[id])
			if err != nil {
				return fmt.Errorf("rerank failed for source %s: %w", id, err)
			}
			reranked[id] = rows
		}
		rc.RoughRanked = reranked
	}

	rc.AccurateRanked = make(map[string][]*document.Row, len(rc.RoughRanked))
	rc.AccurateCount = make(map[string]int, len(rc.RoughRanked))
	for _, id := range sortedKeys(rc.RoughRanked) {
		kept, err := p.lexical.Apply(ctx, rc.RoughRanked[id], rc.Input)
		if err != nil {
			return fmt.Errorf("lexical filter failed for source %s: %w", id, err)
		}
		rc.AccurateRanked[id] = kept
		rc.AccurateCount[id] = len(kept)
	}
	return nil
}

// citeStage groups the accurate-ranked rows into snippets and merges them
// into citations, per source.
func (p *Pipeline) citeStage(ctx context.Context, rc *Context) {
	_, span := telemetry.Tracer.Start(ctx, "retrieval.cite")
	defer span.End()

	rc.Snippets = make(map[string][]*cite.Snippet, len(rc.AccurateRanked))
	rc.Citations = make(map[string][]*cite.Cite, len(rc.AccurateRanked))
	var total int
	for _, id := range sortedKeys(rc.AccurateRanked) {
		snippets := p.grouper.BuildSnippets(rc.AccurateRanked[id])
		rc.Snippets[id] = snippets
		cites := p.grouper.MergeCites(snippets, rc.SourceTags[id])
		rc.Citations[id] = cites
		total += len(cites)
	}
	if p.citationCounter != nil {
		p.citationCounter.Add(ctx, int64(total))
	}
}

// sortedKeys returns the map keys in ascending order, so per-source
// stages run deterministically.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rankQuery picks the query text rows are scored against: the rewrite
// variant is optimized for retrieval, so it wins over origin and augment.
func (p *Pipeline) rankQuery(rc *Context) string {
	for _, key := range []string{query.KeyRewrite, query.KeyOrigin, query.KeyAugment} {
		if q, ok := rc.ProcessedQueries[key]; ok {
			return q.Content
		}
	}
	return ""
}
