//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package source describes retrieval data sources and fans retrieval
// calls out across the configured backends.
package source

import (
	"context"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/faq"
	"github.com/kweaver-ai/kweaver-sub002/retrieval/query"
)

// SelfSourceID is the sentinel data source id that resolves to the
// platform-default backend address instead of an external lookup.
const SelfSourceID = "self"

// DataSource is one configured backend connection descriptor.
type DataSource struct {
	// ID identifies the data source. The sentinel SelfSourceID maps to
	// the platform-default backend address.
	ID string

	// Kind selects which Backend serves this source.
	Kind string

	// Address is the connection address, used as-is when no resolver is
	// configured.
	Address string
}

// Request carries everything a backend needs for one retrieval call.
type Request struct {
	// Source is the data source being queried.
	Source DataSource

	// Address is the resolved connection address.
	Address string

	// Queries are the processed query variants, keyed by variant name.
	Queries map[string]*query.Query

	// Headers are the opaque request headers.
	Headers map[string]string
}

// Result is what one backend returns for one data source.
type Result struct {
	// RowsBySource maps data source id to its retrieved rows. Sources
	// with no rows contribute nothing.
	RowsBySource map[string][]*document.Row

	// Tag is the backend-kind tag, later surfaced as the citation's
	// retrieve source type.
	Tag string

	// FaqRows are exact-match Q&A candidates.
	FaqRows []*faq.Row
}

// Backend is one retrieval backend kind. Implementations own transport,
// timeouts and retries; a returned error is treated as a hard failure by
// the fan-out.
type Backend interface {
	// Kind reports which DataSource.Kind this backend serves.
	Kind() string

	// Retrieve performs one retrieval call for the given data source.
	Retrieve(ctx context.Context, req *Request) (*Result, error)
}

// AddressResolver resolves a data source id to a connection address.
// Resolution of non-sentinel ids is delegated here; credential and auth
// handling live behind this interface.
type AddressResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}
