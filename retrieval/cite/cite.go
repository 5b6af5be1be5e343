//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package cite groups ranked fragments into per-document snippets and
// merges contiguous fragments into readable citations.
package cite

import "github.com/kweaver-ai/kweaver-sub002/retrieval/document"

// Slice is one fragment entry kept inside a citation.
type Slice struct {
	// Score is the rerank/lexical score of the fragment.
	Score float64

	// SequenceNo is the fragment position within the source document.
	SequenceNo int

	// Text is the fragment content with any filename prefix stripped.
	Text string

	// Embedding is the fragment embedding vector, when present.
	Embedding []float64

	// Pages lists the document pages the fragment spans.
	Pages []int

	// FragmentID uniquely identifies the fragment within the backend.
	FragmentID string
}

// fragment is a Slice plus its position in the original ranked order,
// which drives run splitting and run ordering during the merge.
type fragment struct {
	Slice
	origPos  int
	fileName string
}

// Snippet accumulates the fragments of one source document between
// grouping and citation merging. It is created lazily on the first row
// seen for a document identity, mutated by addFragment, consumed once by
// MergeCites and discarded at the end of the request.
type Snippet struct {
	// Meta is the document metadata, copied from the first row seen for
	// this document.
	Meta document.Meta

	fragments []fragment
}

// addFragment appends one fragment entry to the snippet.
func (s *Snippet) addFragment(f fragment) {
	s.fragments = append(s.fragments, f)
}

// Len returns the number of accumulated fragments.
func (s *Snippet) Len() int {
	return len(s.fragments)
}

// Cite is a merged, document-scoped group of fragments presented as one
// evidence item.
type Cite struct {
	// Meta is the document metadata.
	Meta document.Meta

	// Content is the ordered concatenation of the kept fragments' text.
	Content string

	// Slices are the kept fragment entries, in content order.
	Slices []Slice

	// Score is set at construction to the best-ranked slice's score.
	// The result formatter recomputes it as the max of all slice scores
	// and downstream consumers must never trust the constructed value.
	Score float64

	// RetrieveSourceType tags which backend kind produced the document.
	RetrieveSourceType string
}
