// Package answer generates natural-language answers from retrieved filing
// context.
package answer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
	"edgarqa/internal/textproc"
)

// NotFoundAnswer is returned when no context is available for a question.
const NotFoundAnswer = "I cannot find this information in the provided context."

// ErrorPrefix starts the answer text reported when generation fails.
const ErrorPrefix = "Error generating answer: "

// Answer is a generated answer and the chunks it was drawn from.
type Answer struct {
	Text     string   `json:"answer"`
	ChunkIDs []string `json:"chunk_ids"`
}

// Recorder observes answer outcomes.
type Recorder interface {
	Answer(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Answer(string) {}

// Generator wraps an Answerer with the failure conventions of the pipeline.
type Generator struct {
	answerer domain.Answerer
	timeout  time.Duration
	recorder Recorder
}

func NewGenerator(answerer domain.Answerer, timeout time.Duration, recorder Recorder) *Generator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Generator{answerer: answerer, timeout: timeout, recorder: recorder}
}

// Generate answers query from contextText. An empty context short-circuits to
// NotFoundAnswer. On failure the answer text carries the error, no chunk ids
// are reported and an AnswerGenerationFailure error is returned alongside.
func (g *Generator) Generate(ctx context.Context, query, contextText string, chunkIDs []string) (Answer, error) {
	if strings.TrimSpace(contextText) == "" {
		g.recorder.Answer("empty")
		return Answer{Text: NotFoundAnswer}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.answerer.Answer(ctx, query, contextText)
	if err != nil {
		g.recorder.Answer("error")
		logger.Error(ctx, "answer generation failed", err, "query", query)
		return Answer{Text: ErrorPrefix + err.Error()}, apperr.Wrap(err, apperr.KindAnswerGenerationFailure, "answer.Generate")
	}
	g.recorder.Answer("ok")
	ids := make([]string, len(chunkIDs))
	copy(ids, chunkIDs)
	return Answer{Text: strings.TrimSpace(text), ChunkIDs: ids}, nil
}

// Extractive answers with the context sentence that best overlaps the
// question. It needs no model and serves offline runs.
type Extractive struct{}

func (Extractive) Answer(ctx context.Context, query, contextText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := textproc.ContentWords(query)
	if len(q) == 0 {
		return "", fmt.Errorf("question has no content words")
	}
	qset := make(map[string]struct{}, len(q))
	for _, w := range q {
		qset[w] = struct{}{}
	}

	best, bestScore := "", 0.0
	for _, sent := range textproc.Sentences(stripSources(contextText)) {
		words := textproc.ContentWords(sent)
		if len(words) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(words))
		hits := 0
		for _, w := range words {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			if _, ok := qset[w]; ok {
				hits++
			}
		}
		score := float64(hits) / math.Sqrt(float64(len(qset))*float64(len(seen)))
		if score > bestScore {
			best, bestScore = sent, score
		}
	}
	if best == "" {
		return NotFoundAnswer, nil
	}
	return best, nil
}

// stripSources drops the "(Source: id)" tags added during retrieval.
func stripSources(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "(Source: ") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
