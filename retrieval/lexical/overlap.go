//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

package lexical

import (
	"context"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Verify that OverlapScorer implements the Scorer interface.
var _ Scorer = (*OverlapScorer)(nil)

// defaultPriorWeight blends the rerank prior into the weighted score.
const defaultPriorWeight = 0.3

// OverlapScorer is an in-process token-overlap scorer. Texts are width
// folded and lower cased; latin runs become word tokens and CJK runs
// become character bigrams.
type OverlapScorer struct {
	priorWeight float64
}

// NewOverlapScorer creates the default token-overlap scorer.
func NewOverlapScorer() *OverlapScorer {
	return &OverlapScorer{priorWeight: defaultPriorWeight}
}

// Score implements the Scorer interface. The token score is the number of
// distinct query tokens found in the text. The weighted score is the
// overlap ratio, blended with the sigmoid-squashed rerank prior when one
// is present.
func (s *OverlapScorer) Score(ctx context.Context, text string, input map[string]string, prior *float64) (float64, float64, error) {
	queryTokens := make(map[string]struct{})
	for _, raw := range input {
		for _, tok := range tokenize(raw) {
			queryTokens[tok] = struct{}{}
		}
	}
	if len(queryTokens) == 0 {
		return 0, 0, nil
	}

	textTokens := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		textTokens[tok] = struct{}{}
	}

	var overlap int
	for tok := range queryTokens {
		if _, ok := textTokens[tok]; ok {
			overlap++
		}
	}

	tokenScore := float64(overlap)
	weighted := tokenScore / float64(len(queryTokens))
	if prior != nil {
		weighted = (1-s.priorWeight)*weighted + s.priorWeight*sigmoid(*prior)
	}
	return tokenScore, weighted, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// tokenize width-folds and lower-cases s, then emits latin/digit words
// and CJK character bigrams.
func tokenize(s string) []string {
	folded := strings.ToLower(width.Fold.String(s))

	var tokens []string
	var word strings.Builder
	var prevCJK rune
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) && unicode.Is(unicode.Han, r):
			flush()
			if prevCJK != 0 {
				tokens = append(tokens, string([]rune{prevCJK, r}))
			}
			prevCJK = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prevCJK = 0
			word.WriteRune(r)
		default:
			prevCJK = 0
			flush()
		}
	}
	flush()
	return tokens
}
