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
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kweaver-ai/kweaver-sub002/log"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
)

// maxDefaultParallel limits concurrent backend calls when the caller does
// not specify an explicit value.
const maxDefaultParallel = 4

// Fanout dispatches one retrieval call per configured data source and
// aggregates the raw rows and FAQ candidates. Each source writes to a
// disjoint key of the aggregated map, so no synchronization beyond the
// collection lock is needed.
type Fanout struct {
	backends       map[string]Backend
	resolver       AddressResolver
	defaultAddress string
	parallelism    int
}

// Option represents a functional option for configuring the Fanout.
type Option func(*Fanout)

// WithBackend registers a backend for its kind. Registering a second
// backend of the same kind replaces the first.
func WithBackend(b Backend) Option {
	return func(f *Fanout) {
		f.backends[b.Kind()] = b
	}
}

// WithResolver sets the external data source address resolver.
func WithResolver(r AddressResolver) Option {
	return func(f *Fanout) {
		f.resolver = r
	}
}

// WithDefaultAddress sets the platform-default backend address used for
// the sentinel self source id.
func WithDefaultAddress(addr string) Option {
	return func(f *Fanout) {
		f.defaultAddress = addr
	}
}

// WithParallelism sets how many backend calls run concurrently.
func WithParallelism(n int) Option {
	return func(f *Fanout) {
		if n > 0 {
			f.parallelism = n
		}
	}
}

// NewFanout creates a retrieval fan-out with the given options.
func NewFanout(opts ...Option) *Fanout {
	f := &Fanout{
		backends: make(map[string]Backend),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Retrieve fans one retrieval call out per data source and fans the
// results back in.
//
// The returned row map is always allocated, even when every source comes
// back empty, so callers can distinguish "retrieval ran" from "retrieval
// never ran". Only non-empty per-source row sets are aggregated; a source
// with no rows contributes nothing and is not an error. The tags map
// records the backend-kind tag per contributing source.
//
// The first backend error cancels the remaining calls and fails the whole
// retrieval; partial results are not returned as a degraded success.
func (f *Fanout) Retrieve(
	ctx context.Context,
	sources []DataSource,
	queries map[string]*query.Query,
	headers map[string]string,
) (map[string][]*document.Row, map[string]string, []*faq.Row, error) {
	rows := make(map[string][]*document.Row)
	tags := make(map[string]string)
	var faqRows []*faq.Row
	if len(sources) == 0 {
		return rows, tags, faqRows, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(f.poolSize(len(sources)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create fan-out worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errCh = make(chan error, len(sources))
	)
	for _, src := range sources {
		backend, ok := f.backends[src.Kind]
		if !ok {
			cancel()
			return nil, nil, nil, fmt.Errorf("no backend registered for source kind %q", src.Kind)
		}

		wg.Add(1)
		ds := src
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			addr, err := f.resolveAddress(ctx, ds)
			if err != nil {
				errCh <- fmt.Errorf("failed to resolve address for source %s: %w", ds.ID, err)
				cancel()
				return
			}

			result, err := backend.Retrieve(ctx, &Request{
				Source:  ds,
				Address: addr,
				Queries: queries,
				Headers: headers,
			})
			if err != nil {
				errCh <- fmt.Errorf("retrieval failed for source %s: %w", ds.ID, err)
				cancel()
				return
			}

			mu.Lock()
			for id, srcRows := range result.RowsBySource {
				if len(srcRows) == 0 {
					continue
				}
				rows[id] = srcRows
				tags[id] = result.Tag
			}
			faqRows = append(faqRows, result.FaqRows...)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			errCh <- fmt.Errorf("failed to submit retrieval task for source %s: %w", ds.ID, err)
			cancel()
		}
	}

	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, nil, nil, err
	}

	log.Debugf("fan-out aggregated %d source(s), %d FAQ candidate(s)", len(rows), len(faqRows))
	return rows, tags, faqRows, nil
}

// resolveAddress maps the sentinel self id to the platform default and
// delegates everything else to the external resolver when one is set.
func (f *Fanout) resolveAddress(ctx context.Context, ds DataSource) (string, error) {
	if ds.ID == SelfSourceID {
		return f.defaultAddress, nil
	}
	if f.resolver != nil {
		return f.resolver.Resolve(ctx, ds.ID)
	}
	return ds.Address, nil
}

func (f *Fanout) poolSize(sourceCount int) int {
	size := f.parallelism
	if size == 0 {
		size = maxDefaultParallel
	}
	if sourceCount < size {
		size = sourceCount
	}
	return size
}
