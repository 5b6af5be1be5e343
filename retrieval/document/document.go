//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package document defines the fixed-schema row types exchanged between
// the retrieval backends and the ranking stages.
package document

// Meta holds the document-level metadata carried by every retrieved
// fragment. It is copied once per document when the first fragment of
// that document is seen.
type Meta struct {
	// DocID is the backend path of the document; its last path segment
	// identifies the document within a pipeline run.
	DocID string

	// DocName is the display name of the document.
	DocName string

	// ExtType is the file extension type, e.g. "pdf" or "docx".
	ExtType string

	// ParentPath is the directory the document lives in.
	ParentPath string

	// Size is the document size in bytes.
	Size int64

	// DocLibType is the library the document belongs to.
	DocLibType string
}

// Identity returns the last path segment of DocID, the per-run document
// identity used for snippet grouping.
func (m Meta) Identity() string {
	id := m.DocID
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '/' {
			return id[i+1:]
		}
	}
	return id
}

// Row is one retrieved fragment of a source document.
//
// Rows are produced by a retrieval backend and consumed read-only by the
// ranking stages, except for the score fields: Score is overwritten by
// the rerank stage, TokenScore and WeightedTokenScore by the lexical
// filter.
type Row struct {
	Meta

	// Text is the fragment content. Backends may prefix it with a
	// filename marker that the citation grouper strips.
	Text string

	// SequenceNo is the fragment position within the source document.
	SequenceNo int

	// FragmentID uniquely identifies the fragment within the backend.
	FragmentID string

	// Embedding is the fragment embedding vector, when the backend
	// returns one.
	Embedding []float64

	// Pages lists the document pages the fragment spans.
	Pages []int

	// Score is the relevance score attached by the rerank stage.
	Score float64

	// TokenScore is the lexical overlap score attached by the lexical
	// filter.
	TokenScore float64

	// WeightedTokenScore is the lexical overlap score blended with the
	// rerank prior.
	WeightedTokenScore float64
}
