//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package format flattens per-source citations into the final response
// items, pruning low-scoring citations against a threshold.
package format

import (
	"sort"
	"strings"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/cite"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
)

const (
	// DefaultDocumentsNum caps how many citations one source contributes.
	DefaultDocumentsNum = 8

	// DefaultDocumentThreshold is the minimum score for every citation
	// after the first one emitted.
	DefaultDocumentThreshold = -5.5

	// initialThreshold accepts anything for the very first citation
	// emitted across the whole per-source loop.
	initialThreshold = -100
)

// Item is one entry of the final response list. Score and
// RetrieveSourceType are promoted to top-level fields; the raw citation
// score is discarded.
type Item struct {
	// Meta is the document metadata. Zero for FAQ items.
	Meta document.Meta

	// Content is the merged citation text.
	Content string

	// Slices are the citation's fragment entries.
	Slices []cite.Slice

	// Score is the max score among the item's slices, recomputed here
	// regardless of what the citation carried.
	Score float64

	// RetrieveSourceType tags the producing backend kind, or "FAQ".
	RetrieveSourceType string
}

// Formatter flattens citations into response items.
type Formatter struct {
	documentsNum      int
	documentThreshold float64
}

// Option represents a functional option for configuring the Formatter.
type Option func(*Formatter)

// WithDocumentsNum caps how many citations one source contributes.
func WithDocumentsNum(n int) Option {
	return func(f *Formatter) {
		if n > 0 {
			f.documentsNum = n
		}
	}
}

// WithDocumentThreshold sets the pruning threshold.
func WithDocumentThreshold(threshold float64) Option {
	return func(f *Formatter) {
		f.documentThreshold = threshold
	}
}

// NewFormatter creates a result formatter with the given options.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		documentsNum:      DefaultDocumentsNum,
		documentThreshold: DefaultDocumentThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format flattens the per-source citation lists into one response list.
//
// Precondition: each source's citations must already be sorted by
// descending score. The formatter does not verify this; an unsorted list
// makes the threshold break below discard still-acceptable citations.
// Sources are visited in ascending key order so output is deterministic.
//
// The first citation ever emitted is accepted regardless of score. Every
// later citation must score above the document threshold; the first one
// that fails ends its source's loop entirely rather than being skipped.
func (f *Formatter) Format(citesBySource map[string][]*cite.Cite) []*Item {
	sources := make([]string, 0, len(citesBySource))
	for id := range citesBySource {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	var items []*Item
	threshold := float64(initialThreshold)
	for _, id := range sources {
		cites := citesBySource[id]
		if len(cites) > f.documentsNum {
			cites = cites[:f.documentsNum]
		}
		for _, c := range cites {
			if len(c.Slices) == 0 {
				// A citation without slices cannot be scored; this is a
				// grouper bug, not a recoverable runtime condition.
				panic("format: citation has no slices")
			}
			score := maxSliceScore(c.Slices)
			if score <= threshold {
				log.Debugf("source %s pruned at score %.4f (threshold %.4f)",
					id, score, threshold)
				break
			}
			items = append(items, &Item{
				Meta:               c.Meta,
				Content:            strings.ReplaceAll(c.Content, "|None", "|"),
				Slices:             c.Slices,
				Score:              score,
				RetrieveSourceType: c.RetrieveSourceType,
			})
			threshold = f.documentThreshold
		}
	}
	return items
}

func maxSliceScore(slices []cite.Slice) float64 {
	score := slices[0].Score
	for _, s := range slices[1:] {
		if s.Score > score {
			score = s.Score
		}
	}
	return score
}
