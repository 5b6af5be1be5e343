//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package cite

import (
	"sort"
	"strings"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
)

const (
	// DefaultMaxSlicePerCite caps how many fragments one citation keeps.
	DefaultMaxSlicePerCite = 16

	// DefaultSeparator splits an optional "filename /| content" prefix
	// off the fragment text.
	DefaultSeparator = "/| "
)

// Grouper turns a source's accurate-ranked rows into snippets and merges
// each snippet's fragments into contiguous runs.
type Grouper struct {
	separator       string
	maxSlicePerCite int
}

// Option represents a functional option for configuring the Grouper.
type Option func(*Grouper)

// WithSeparator sets the filename prefix separator.
func WithSeparator(sep string) Option {
	return func(g *Grouper) {
		g.separator = sep
	}
}

// WithMaxSlicePerCite caps the number of slices kept per citation.
func WithMaxSlicePerCite(n int) Option {
	return func(g *Grouper) {
		if n > 0 {
			g.maxSlicePerCite = n
		}
	}
}

// NewGrouper creates a citation grouper with the given options.
func NewGrouper(opts ...Option) *Grouper {
	g := &Grouper{
		separator:       DefaultSeparator,
		maxSlicePerCite: DefaultMaxSlicePerCite,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildSnippets groups rows into one snippet per document identity.
// Rows must be iterated in their existing, already-ranked order: the
// position of each row in this slice is recorded as its original ranked
// position and later decides run splitting and run ordering.
func (g *Grouper) BuildSnippets(rows []*document.Row) []*Snippet {
	byIdentity := make(map[string]*Snippet)
	var snippets []*Snippet

	for i, row := range rows {
		identity := row.Identity()
		snippet, ok := byIdentity[identity]
		if !ok {
			snippet = &Snippet{Meta: row.Meta}
			byIdentity[identity] = snippet
			snippets = append(snippets, snippet)
		}

		text := row.Text
		var fileName string
		if idx := strings.Index(text, g.separator); idx >= 0 {
			fileName = text[:idx]
			text = text[idx+len(g.separator):]
		}

		snippet.addFragment(fragment{
			Slice: Slice{
				Score:      row.Score,
				SequenceNo: row.SequenceNo,
				Text:       text,
				Embedding:  row.Embedding,
				Pages:      row.Pages,
				FragmentID: row.FragmentID,
			},
			origPos:  i,
			fileName: fileName,
		})
	}

	log.Debugf("grouped %d row(s) into %d snippet(s)", len(rows), len(snippets))
	return snippets
}

// MergeCites builds one citation per snippet by merging the snippet's
// fragments into contiguous runs. sourceType tags every citation with the
// backend kind that produced it.
func (g *Grouper) MergeCites(snippets []*Snippet, sourceType string) []*Cite {
	cites := make([]*Cite, 0, len(snippets))
	for _, snippet := range snippets {
		if snippet.Len() == 0 {
			continue
		}
		cite := g.merge(snippet)
		cite.RetrieveSourceType = sourceType
		cites = append(cites, cite)
	}
	return cites
}

// merge sorts the snippet's fragments by sequence number, walks them into
// contiguous runs, re-orders the runs by the original ranked position of
// each run's first fragment and flattens up to maxSlicePerCite entries.
func (g *Grouper) merge(snippet *Snippet) *Cite {
	frags := make([]fragment, len(snippet.fragments))
	copy(frags, snippet.fragments)
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].SequenceNo < frags[j].SequenceNo
	})

	// A run breaks when the sequence numbers stop being consecutive, or
	// when the current fragment outranks the run's first fragment in the
	// original order: a later, lower-ranked but numerically adjacent
	// fragment must not be merged ahead of a higher-ranked one.
	var runs [][]fragment
	var run []fragment
	for _, f := range frags {
		if len(run) > 0 &&
			(f.SequenceNo != run[len(run)-1].SequenceNo+1 || f.origPos < run[0].origPos) {
			runs = append(runs, run)
			run = nil
		}
		run = append(run, f)
	}
	if len(run) > 0 {
		runs = append(runs, run)
	}

	// The run whose first fragment ranked earliest goes first, so the
	// highest-relevance passage leads the citation content.
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i][0].origPos < runs[j][0].origPos
	})

	var (
		slices  []Slice
		content strings.Builder
	)
flatten:
	for _, r := range runs {
		for _, f := range r {
			slices = append(slices, f.Slice)
			content.WriteString(f.Text)
			if len(slices) >= g.maxSlicePerCite {
				break flatten
			}
		}
	}

	return &Cite{
		Meta:    snippet.Meta,
		Content: content.String(),
		Slices:  slices,
		Score:   slices[0].Score,
	}
}
