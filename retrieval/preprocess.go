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

	"github.com/kweaver-ai/kweaver-sub002/retrieval/document"
)

// Preprocessor deduplicates and groups raw rows per source before
// reranking. Implementations may call out to external services.
type Preprocessor interface {
	Process(ctx context.Context, rows map[string][]*document.Row) (map[string][]*document.Row, error)
}

// Verify that DedupPreprocessor implements the Preprocessor interface.
var _ Preprocessor = (*DedupPreprocessor)(nil)

// DedupPreprocessor drops duplicate fragments per source by fragment id,
// preserving the retrieved order.
type DedupPreprocessor struct{}

// NewDedupPreprocessor creates the default preprocessor.
func NewDedupPreprocessor() *DedupPreprocessor {
	return &DedupPreprocessor{}
}

// Process implements the Preprocessor interface.
func (p *DedupPreprocessor) Process(ctx context.Context, rows map[string][]*document.Row) (map[string][]*document.Row, error) {
	out := make(map[string][]*document.Row, len(rows))
	for id, srcRows := range rows {
		seen := make(map[string]struct{}, len(srcRows))
		kept := make([]*document.Row, 0, len(srcRows))
		for _, row := range srcRows {
			if row.FragmentID != "" {
				if _, dup := seen[row.FragmentID]; dup {
					continue
				}
				seen[row.FragmentID] = struct{}{}
			}
			kept = append(kept, row)
		}
		out[id] = kept
	}
	return out, nil
}
