//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package cached wraps an embedder with a redis get-or-compute cache.
// Keys are the content fingerprints produced by the query package, so a
// query variant embedded once is never re-embedded while the key lives.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/embedder"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
)

// Verify that Embedder implements the embedder.Embedder interface.
var _ embedder.Embedder = (*Embedder)(nil)

const (
	defaultKeyPrefix = "kw:emb:"
	defaultTTL       = 24 * time.Hour
)

// Embedder caches the vectors of an inner embedder in redis.
//
// Cache reads fail open: a redis error other than a miss is logged and the
// inner embedder is consulted, so a degraded cache never fails a request.
// Inner embedder errors propagate as usual.
type Embedder struct {
	inner     embedder.Embedder
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// Option represents a functional option for configuring the Embedder.
type Option func(*Embedder)

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(e *Embedder) {
		e.keyPrefix = prefix
	}
}

// WithTTL sets how long cached vectors live. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(e *Embedder) {
		e.ttl = ttl
	}
}

// New creates a caching embedder around inner backed by the given redis
// client.
func New(inner embedder.Embedder, client redis.UniversalClient, opts ...Option) *Embedder {
	e := &Embedder{
		inner:     inner,
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetEmbedding implements the embedder.Embedder interface.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	key := e.key(text)
	if vec, ok := e.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := e.inner.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, vec)
	return vec, nil
}

// GetEmbeddings implements the embedder.Embedder interface. Cached texts
// are served from redis; only the misses are forwarded to the inner
// embedder, in one batch.
func (e *Embedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	embeddings := make([][]float64, len(texts))
	var (
		missTexts   []string
		missIndexes []int
	)
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, e.key(text)); ok {
			embeddings[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIndexes = append(missIndexes, i)
	}
	if len(missTexts) == 0 {
		return embeddings, nil
	}

	computed, err := e.inner.GetEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missTexts) {
		return nil, fmt.Errorf("inner embedder returned %d vectors for %d texts",
			len(computed), len(missTexts))
	}
	for j, vec := range computed {
		idx := missIndexes[j]
		embeddings[idx] = vec
		e.store(ctx, e.key(texts[idx]), vec)
	}
	return embeddings, nil
}

func (e *Embedder) key(text string) string {
	return e.keyPrefix + query.Fingerprint(text)
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float64, bool) {
	data, err := e.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("embedding cache read failed for %s: %v", key, err)
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		log.Warnf("embedding cache entry %s is corrupt: %v", key, err)
		return nil, false
	}
	return vec, true
}

func (e *Embedder) store(ctx context.Context, key string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		log.Warnf("failed to marshal embedding for %s: %v", key, err)
		return
	}
	if err := e.client.Set(ctx, key, data, e.ttl).Err(); err != nil {
		log.Warnf("embedding cache write failed for %s: %v", key, err)
	}
}
