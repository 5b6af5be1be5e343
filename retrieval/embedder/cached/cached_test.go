//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package cached

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// countingEmbedder hands out fixed-size vectors and counts how many texts
// were actually embedded.
type countingEmbedder struct {
	embedded atomic.Int32
}

func (e *countingEmbedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	e.embedded.Add(1)
	return []float64{float64(len(text)), 1}, nil
}

func (e *countingEmbedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, _ := e.GetEmbedding(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func newTestEmbedder(t *testing.T) (*Embedder, *countingEmbedder) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	inner := &countingEmbedder{}
	return New(inner, client), inner
}

func TestGetEmbeddingCachesVector(t *testing.T) {
	e, inner := newTestEmbedder(t)
	ctx := context.Background()

	first, err := e.GetEmbedding(ctx, "refund policy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.GetEmbedding(ctx, "refund policy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.embedded.Load() != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.embedded.Load())
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("cached vector differs: %v vs %v", first, second)
	}
}

func TestGetEmbeddingsForwardsOnlyMisses(t *testing.T) {
	e, inner := newTestEmbedder(t)
	ctx := context.Background()

	if _, err := e.GetEmbedding(ctx, "warm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner.embedded.Store(0)

	vecs, err := e.GetEmbeddings(ctx, []string{"warm", "cold one", "cold two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) == 0 {
			t.Fatalf("vector %d missing", i)
		}
	}
	if inner.embedded.Load() != 2 {
		t.Fatalf("expected 2 inner calls for the misses, got %d", inner.embedded.Load())
	}
}

func TestGetEmbeddingsEmptyInput(t *testing.T) {
	e, _ := newTestEmbedder(t)
	if _, err := e.GetEmbeddings(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestCacheFailsOpen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	inner := &countingEmbedder{}
	e := New(inner, client)

	// A dead cache degrades to the inner embedder, it never fails the call.
	srv.Close()
	vec, err := e.GetEmbedding(context.Background(), "refund policy")
	if err != nil {
		t.Fatalf("cache outage must not fail the request: %v", err)
	}
	if len(vec) == 0 {
		t.Fatalf("expected a computed vector")
	}
	if inner.embedded.Load() != 1 {
		t.Fatalf("inner embedder not consulted")
	}
}
