//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package query builds fingerprinted query variants from raw request input.
package query

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Variant identifies which rewrite of the user query a Query carries.
type Variant string

// Recognized query variants.
const (
	VariantOrigin  Variant = "origin"
	VariantRewrite Variant = "rewrite"
	VariantAugment Variant = "augment"
)

// Input map keys for the recognized variants.
const (
	KeyOrigin  = "origin_query"
	KeyRewrite = "rewrite_query"
	KeyAugment = "augment_query"
)

// variantKeys fixes the build order of the recognized variants.
var variantKeys = []struct {
	key     string
	variant Variant
}{
	{KeyOrigin, VariantOrigin},
	{KeyRewrite, VariantRewrite},
	{KeyAugment, VariantAugment},
}

// Query is the value object produced by the Builder for one variant.
type Query struct {
	// Content is the raw query text of this variant.
	Content string

	// Fingerprint is a content hash used as a cache key downstream
	// (embedding cache, dedup).
	Fingerprint string

	// Variant tags which rewrite this query is.
	Variant Variant

	// Embedding is the query embedding vector, filled when the builder
	// has an embedder configured.
	Embedding []float64
}

// Fingerprint returns the hex md5 of the given content. It is a pure
// function of the content: equal texts always produce equal fingerprints.
func Fingerprint(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// fingerprintInput hashes the entire input mapping in canonical key order.
// The origin variant is fingerprinted this way while rewrite and augment
// hash only their own text; the asymmetry is kept because the fingerprints
// double as cache keys and changing either side would invalidate them.
func fingerprintInput(input map[string]string) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(input[k])
		sb.WriteByte('\n')
	}
	return Fingerprint(sb.String())
}
