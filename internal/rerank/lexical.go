package rerank

import (
	"context"
	"math"

	"edgarqa/internal/textproc"
)

// LexicalScorer rates a passage by the Ochiai coefficient between its content
// words and the query's: |A∩B| / sqrt(|A||B|). It needs no model and is the
// offline default.
type LexicalScorer struct{}

func (LexicalScorer) Name() string { return "lexical" }

func (LexicalScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	qset := contentSet(query)
	scores := make([]float64, len(passages))
	for i, p := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = overlapOchiai(qset, p)
	}
	return scores, nil
}

func contentSet(text string) map[string]struct{} {
	words := textproc.ContentWords(text)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := contentSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
