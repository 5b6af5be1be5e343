//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package faq

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kweaver-ai/kweaver-sub002/retrieval/format"
)

// DefaultTitleSeparator joins the title parts of a FAQ entry.
const DefaultTitleSeparator = "/"

// minImageDescriptionLen is the rune count below which an image
// description is considered trivial and skipped (after trimming).
const minImageDescriptionLen = 3

// Formatter renders ranked FAQ rows into response items.
type Formatter struct {
	titleSeparator string
}

// Option represents a functional option for configuring the Formatter.
type Option func(*Formatter)

// WithTitleSeparator sets the separator joining title parts.
func WithTitleSeparator(sep string) Option {
	return func(f *Formatter) {
		f.titleSeparator = sep
	}
}

// NewFormatter creates a FAQ formatter with the given options.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		titleSeparator: DefaultTitleSeparator,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format renders each ranked candidate into one item. Text units are
// appended verbatim. Image descriptions are appended unless they are
// trivially short after trimming, or the unit is image-typed and the
// description merely echoes the title.
func (f *Formatter) Format(rows []*Row) []*format.Item {
	items := make([]*format.Item, 0, len(rows))
	for _, row := range rows {
		title := strings.Join(row.Title, f.titleSeparator)

		var sb strings.Builder
		sb.WriteString(title)
		for _, content := range row.Contents {
			for _, text := range content.Texts {
				sb.WriteString(text)
			}
			for _, name := range sortedImageNames(content.Images) {
				desc := content.Images[name]
				if utf8.RuneCountInString(strings.TrimSpace(desc)) < minImageDescriptionLen {
					continue
				}
				if content.Type == ContentTypeImage && desc == title {
					continue
				}
				sb.WriteString(desc)
			}
		}

		items = append(items, &format.Item{
			Content:            sb.String(),
			Score:              row.Score,
			RetrieveSourceType: SourceType,
		})
	}
	return items
}

func sortedImageNames(images map[string]string) []string {
	if len(images) == 0 {
		return nil
	}
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
