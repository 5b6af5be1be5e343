//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
)

// stubBackend serves one kind and returns canned results per source id.
type stubBackend struct {
	kind    string
	results map[string]*Result
	err     error
	calls   atomic.Int32
	gotAddr atomic.Value
}

func (b *stubBackend) Kind() string { return b.kind }

func (b *stubBackend) Retrieve(ctx context.Context, req *Request) (*Result, error) {
	b.calls.Add(1)
	b.gotAddr.Store(req.Address)
	if b.err != nil {
		return nil, b.err
	}
	if res, ok := b.results[req.Source.ID]; ok {
		return res, nil
	}
	return &Result{RowsBySource: map[string][]*document.Row{}}, nil
}

func TestFanoutAggregatesNonEmptySources(t *testing.T) {
	backend := &stubBackend{
		kind: "as",
		results: map[string]*Result{
			"ds1": {
				RowsBySource: map[string][]*document.Row{
					"ds1":   {{Meta: document.Meta{DocID: "a/d1"}}},
					"empty": {},
				},
				Tag:     "AS",
				FaqRows: []*faq.Row{{ID: "q1"}},
			},
		},
	}
	f := NewFanout(WithBackend(backend))

	rows, tags, faqRows, err := f.Retrieve(context.Background(),
		[]DataSource{{ID: "ds1", Kind: "as"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty source must contribute nothing, got %d entries", len(rows))
	}
	if len(rows["ds1"]) != 1 {
		t.Fatalf("ds1 rows missing")
	}
	if tags["ds1"] != "AS" {
		t.Fatalf("tag not recorded: %q", tags["ds1"])
	}
	if len(faqRows) != 1 || faqRows[0].ID != "q1" {
		t.Fatalf("faq rows not aggregated: %+v", faqRows)
	}
}

func TestFanoutAlwaysAllocatesRowMap(t *testing.T) {
	backend := &stubBackend{kind: "as"}
	f := NewFanout(WithBackend(backend))

	rows, _, _, err := f.Retrieve(context.Background(),
		[]DataSource{{ID: "ds1", Kind: "as"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Empty-but-present: downstream distinguishes "retrieval ran" from
	// "retrieval never ran" by map presence, not emptiness.
	if rows == nil {
		t.Fatalf("row map must be allocated even when empty")
	}
	if len(rows) != 0 {
		t.Fatalf("expected no aggregated rows, got %d", len(rows))
	}
}

func TestFanoutErrorIsHardFailure(t *testing.T) {
	wantErr := errors.New("backend down")
	good := &stubBackend{
		kind: "as",
		results: map[string]*Result{
			"ds1": {RowsBySource: map[string][]*document.Row{
				"ds1": {{Meta: document.Meta{DocID: "a/d1"}}},
			}},
		},
	}
	bad := &stubBackend{kind: "broken", err: wantErr}
	f := NewFanout(WithBackend(good), WithBackend(bad))

	_, _, _, err := f.Retrieve(context.Background(), []DataSource{
		{ID: "ds1", Kind: "as"},
		{ID: "ds2", Kind: "broken"},
	}, nil, nil)
	if err == nil {
		t.Fatalf("expected hard failure")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestFanoutUnknownKind(t *testing.T) {
	f := NewFanout()
	_, _, _, err := f.Retrieve(context.Background(),
		[]DataSource{{ID: "ds1", Kind: "nope"}}, nil, nil)
	if err == nil {
		t.Fatalf("expected error for unregistered backend kind")
	}
}

func TestFanoutSelfSourceUsesDefaultAddress(t *testing.T) {
	backend := &stubBackend{kind: "as"}
	f := NewFanout(WithBackend(backend), WithDefaultAddress("internal:9000"))

	_, _, _, err := f.Retrieve(context.Background(),
		[]DataSource{{ID: SelfSourceID, Kind: "as", Address: "ignored:1"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := backend.gotAddr.Load(); got != "internal:9000" {
		t.Fatalf("self source must use the default address, got %v", got)
	}
}

type staticResolver struct{ addr string }

func (r *staticResolver) Resolve(ctx context.Context, id string) (string, error) {
	return r.addr, nil
}

func TestFanoutResolvesExternalAddress(t *testing.T) {
	backend := &stubBackend{kind: "as"}
	f := NewFanout(WithBackend(backend), WithResolver(&staticResolver{addr: "resolved:7"}))

	_, _, _, err := f.Retrieve(context.Background(),
		[]DataSource{{ID: "ds1", Kind: "as"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := backend.gotAddr.Load(); got != "resolved:7" {
		t.Fatalf("resolver address not used, got %v", got)
	}
}

func TestFanoutMultipleSources(t *testing.T) {
	backend := &stubBackend{
		kind: "as",
		results: map[string]*Result{
			"ds1": {RowsBySource: map[string][]*document.Row{
				"ds1": {{Meta: document.Meta{DocID: "a/d1"}}},
			}, Tag: "AS"},
			"ds2": {RowsBySource: map[string][]*document.Row{
				"ds2": {{Meta: document.Meta{DocID: "a/d2"}}},
			}, Tag: "AS"},
		},
	}
	f := NewFanout(WithBackend(backend), WithParallelism(2))

	rows, _, _, err := f.Retrieve(context.Background(), []DataSource{
		{ID: "ds1", Kind: "as"},
		{ID: "ds2", Kind: "as"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected rows from both sources, got %d", len(rows))
	}
	if backend.calls.Load() != 2 {
		t.Fatalf("expected 2 backend calls, got %d", backend.calls.Load())
	}
}
