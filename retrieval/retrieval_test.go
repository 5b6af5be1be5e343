//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/lexical"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/reranker"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/source"
)

// docBackend returns a fixed row set for every source.
type docBackend struct {
	rows    map[string][]*document.Row
	faqRows []*faq.Row
}

func (b *docBackend) Kind() string { return "as" }

func (b *docBackend) Retrieve(ctx context.Context, req *source.Request) (*source.Result, error) {
	return &source.Result{
		RowsBySource: b.rows,
		Tag:          "AS",
		FaqRows:      b.faqRows,
	}, nil
}

// scoreByText scores documents by a fixed text-to-score table and counts
// invocations.
type scoreByText struct {
	scores map[string]float64
	calls  atomic.Int32
}

func (c *scoreByText) Score(ctx context.Context, q string, docs []string) ([]float64, error) {
	c.calls.Add(1)
	out := make([]float64, len(docs))
	for i, doc := range docs {
		out[i] = c.scores[doc]
	}
	return out, nil
}

// passAllScorer keeps every row and counts invocations.
type passAllScorer struct {
	calls atomic.Int32
}

func (s *passAllScorer) Score(ctx context.Context, text string, input map[string]string, prior *float64) (float64, float64, error) {
	s.calls.Add(1)
	return 1, 1, nil
}

// stubFaqRanker returns its rows unchanged with a preset confidence and
// counts invocations.
type stubFaqRanker struct {
	confident bool
	calls     atomic.Int32
}

func (r *stubFaqRanker) Rank(ctx context.Context, rows []*faq.Row) ([]*faq.Row, bool, error) {
	r.calls.Add(1)
	return rows, r.confident, nil
}

func docRow(seq int, fragment string) *document.Row {
	return &document.Row{
		Meta: document.Meta{
			DocID:   "docs/D1",
			DocName: "D1",
		},
		Text:       fragment,
		SequenceNo: seq,
		FragmentID: fragment,
	}
}

func TestSearchEndToEnd(t *testing.T) {
	backend := &docBackend{
		rows: map[string][]*document.Row{
			"ds1": {docRow(4, "f4"), docRow(5, "f5"), docRow(9, "f9")},
		},
	}
	rerankClient := &scoreByText{scores: map[string]float64{
		"f4": 0.8, "f5": 0.7, "f9": 0.2,
	}}
	p := New(
		WithFanout(source.NewFanout(source.WithBackend(backend))),
		WithReranker(reranker.New(rerankClient)),
		WithLexicalFilter(lexical.NewFilter(&passAllScorer{})),
	)

	rc := NewContext(
		map[string]string{query.KeyOrigin: "refund policy"},
		[]source.DataSource{{ID: "ds1", Kind: "as"}},
	)
	items, err := p.Search(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Fragments 4 and 5 are contiguous, 9 joins the same document's
	// citation as a separate run: one citation in total.
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.Content != "f4f5f9" {
		t.Fatalf("unexpected content: %q", item.Content)
	}
	if item.Score != 0.8 {
		t.Fatalf("expected max slice score 0.8, got %f", item.Score)
	}
	if item.RetrieveSourceType != "AS" {
		t.Fatalf("source tag not carried: %q", item.RetrieveSourceType)
	}
	if rc.AccurateCount["ds1"] != 3 {
		t.Fatalf("accurate count wrong: %d", rc.AccurateCount["ds1"])
	}
	if len(rc.Citations["ds1"]) != 1 {
		t.Fatalf("citations not recorded in context")
	}
}

func TestSearchFaqShortCircuit(t *testing.T) {
	backend := &docBackend{
		rows: map[string][]*document.Row{
			"ds1": {docRow(1, "f1")},
		},
		faqRows: []*faq.Row{{
			ID:       "q1",
			Title:    []string{"refunds"},
			Contents: []faq.Content{{Type: faq.ContentTypeText, Texts: []string{"5 days"}}},
			Score:    0.99,
		}},
	}
	rerankClient := &scoreByText{scores: map[string]float64{"f1": 1}}
	lexScorer := &passAllScorer{}
	p := New(
		WithFanout(source.NewFanout(source.WithBackend(backend))),
		WithReranker(reranker.New(rerankClient)),
		WithLexicalFilter(lexical.NewFilter(lexScorer)),
		WithFAQRanker(&stubFaqRanker{confident: true}),
	)

	rc := NewContext(
		map[string]string{query.KeyOrigin: "refund policy"},
		[]source.DataSource{{ID: "ds1", Kind: "as"}},
	)
	items, err := p.Search(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 FAQ item, got %d", len(items))
	}
	if items[0].RetrieveSourceType != faq.SourceType {
		t.Fatalf("expected FAQ item, got %q", items[0].RetrieveSourceType)
	}
	// The confident fast path must terminate the run before the document
	// branch: zero rerank and zero lexical calls.
	if rerankClient.calls.Load() != 0 {
		t.Fatalf("rerank ran despite FAQ short-circuit")
	}
	if lexScorer.calls.Load() != 0 {
		t.Fatalf("lexical filter ran despite FAQ short-circuit")
	}
	if rc.Citations != nil {
		t.Fatalf("citation stage ran despite FAQ short-circuit")
	}
}

func TestSearchMergesFaqAndDocuments(t *testing.T) {
	backend := &docBackend{
		rows: map[string][]*document.Row{
			"ds1": {docRow(1, "f1")},
		},
		faqRows: []*faq.Row{{
			ID:       "q1",
			Title:    []string{"refunds"},
			Contents: []faq.Content{{Type: faq.ContentTypeText, Texts: []string{"5 days"}}},
			Score:    5,
		}},
	}
	rerankClient := &scoreByText{scores: map[string]float64{"f1": 0.8}}
	p := New(
		WithFanout(source.NewFanout(source.WithBackend(backend))),
		WithReranker(reranker.New(rerankClient)),
		WithLexicalFilter(lexical.NewFilter(&passAllScorer{})),
		WithFAQRanker(&stubFaqRanker{confident: false}),
	)

	rc := NewContext(
		map[string]string{query.KeyOrigin: "refund policy"},
		[]source.DataSource{{ID: "ds1", Kind: "as"}},
	)
	items, err := p.Search(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(items))
	}
	// Merged list is sorted by descending score across both paths.
	if items[0].RetrieveSourceType != faq.SourceType || items[0].Score != 5 {
		t.Fatalf("FAQ item must lead the merge: %+v", items[0])
	}
	if items[1].Score != 0.8 {
		t.Fatalf("document item score wrong: %f", items[1].Score)
	}
}

func TestSearchNoEvidence(t *testing.T) {
	backend := &docBackend{rows: map[string][]*document.Row{}}
	p := New(
		WithFanout(source.NewFanout(source.WithBackend(backend))),
		WithLexicalFilter(lexical.NewFilter(&passAllScorer{})),
	)

	rc := NewContext(
		map[string]string{query.KeyOrigin: "anything"},
		[]source.DataSource{{ID: "ds1", Kind: "as"}},
	)
	items, err := p.Search(context.Background(), rc)
	if err != nil {
		t.Fatalf("no-evidence runs must not error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty result, got %d items", len(items))
	}
	// The ranking branch still ran on the empty-but-present result set.
	if rc.AccurateRanked == nil {
		t.Fatalf("ranking branch skipped for empty result set")
	}
}

func TestDedupPreprocessor(t *testing.T) {
	p := NewDedupPreprocessor()
	out, err := p.Process(context.Background(), map[string][]*document.Row{
		"ds1": {
			{FragmentID: "a", Text: "first"},
			{FragmentID: "b", Text: "second"},
			{FragmentID: "a", Text: "duplicate"},
			{FragmentID: "", Text: "blank id, kept"},
			{FragmentID: "", Text: "blank id, also kept"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := out["ds1"]
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows after dedup, got %d", len(rows))
	}
	if rows[0].Text != "first" || rows[1].Text != "second" {
		t.Fatalf("retrieved order not preserved: %+v", rows)
	}
}
