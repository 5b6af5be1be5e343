//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package faq implements the FAQ fast path: a parallel short-circuit
// pipeline for exact-match Q&A candidates.
package faq

import "context"

// SourceType tags every FAQ item in the final response.
const SourceType = "FAQ"

// Content unit types.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Content is one content unit of a FAQ answer.
type Content struct {
	// Type is ContentTypeText or ContentTypeImage.
	Type string

	// Texts are the text units, appended verbatim for text content.
	Texts []string

	// Images maps image name to image description.
	Images map[string]string
}

// Row is one FAQ candidate returned by a retrieval backend.
type Row struct {
	// ID identifies the FAQ entry within the backend.
	ID string

	// Title holds the question title parts.
	Title []string

	// Contents are the answer content units.
	Contents []Content

	// Score is the match confidence attached by the ranker.
	Score float64
}

// Ranker scores and orders FAQ candidates. The returned flag reports
// whether the best candidate is a confident exact match; when true the
// orchestrator returns the FAQ output as the terminal result.
type Ranker interface {
	Rank(ctx context.Context, rows []*Row) ([]*Row, bool, error)
}
