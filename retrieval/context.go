//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"github.com/google/uuid"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/cite"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/format"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/source"
)

// HistoryMessage is one conversation turn, opaque to this pipeline.
type HistoryMessage struct {
	Role    string
	Content string
}

// Context is the mutable state threaded by reference through every
// pipeline stage. It is allocated per request, never shared across
// requests, and no stage retains it beyond its own call.
//
// Stage N writes a field; stage N+1 reads exactly that field. Reading a
// field before its stage has run yields empty results, not an error.
type Context struct {
	// RequestID identifies this pipeline run in logs and traces.
	RequestID string

	// Headers carries opaque request metadata.
	Headers map[string]string

	// History carries the conversation history, opaque to this core.
	History []HistoryMessage

	// Input maps query-variant name to raw query text.
	Input map[string]string

	// DataSources are the configured backend descriptors.
	DataSources []source.DataSource

	// ProcessedQueries is written by the query builder.
	ProcessedQueries map[string]*query.Query

	// RawResults maps data source id to retrieved rows; written by the
	// retrieval fan-out. A non-nil empty map means retrieval ran and
	// found nothing, which still enters the ranking branch.
	RawResults map[string][]*document.Row

	// SourceTags maps data source id to the backend-kind tag; written by
	// the retrieval fan-out.
	SourceTags map[string]string

	// FaqCandidates are the FAQ rows aggregated by the fan-out and
	// re-ordered by the FAQ ranker.
	FaqCandidates []*faq.Row

	// FaqIsConfident is set by the FAQ ranker; when true the FAQ output
	// is the terminal result.
	FaqIsConfident bool

	// RoughRanked holds the pre-processed candidate rows; the rerank
	// sub-stage replaces it in place.
	RoughRanked map[string][]*document.Row

	// AccurateRanked holds the rows surviving rerank and lexical
	// filtering.
	AccurateRanked map[string][]*document.Row

	// AccurateCount records the surviving row count per source.
	// Informational only.
	AccurateCount map[string]int

	// Snippets holds the per-source snippet accumulators.
	Snippets map[string][]*cite.Snippet

	// Citations holds the merged citations per source, in ranked order.
	Citations map[string][]*cite.Cite

	// FormattedOutput is the document path's final item list.
	FormattedOutput []*format.Item

	// FaqFormattedOutput is the FAQ path's final item list.
	FaqFormattedOutput []*format.Item
}

// NewContext allocates the per-request pipeline context.
func NewContext(input map[string]string, sources []source.DataSource) *Context {
	return &Context{
		RequestID:   uuid.NewString(),
		Input:       input,
		DataSources: sources,
	}
}
