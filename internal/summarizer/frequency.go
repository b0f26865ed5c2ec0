package summarizer

import (
	"math"
	"sort"
	"strings"

	"edgarqa/internal/domain"
	"edgarqa/internal/textproc"
)

// BusinessSection is the section key of Item 1 (Business).
const BusinessSection = "section_1"

// FrequencySummarizer ranks sentences by content word frequency.
type FrequencySummarizer struct {
	maxSentences int
}

// NewFrequencySummarizer returns a summarizer keeping up to maxSentences
// sentences (5 when maxSentences <= 0).
func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &FrequencySummarizer{maxSentences: maxSentences}
}

// Summarize returns the highest ranked sentences of text in their original order.
func (s *FrequencySummarizer) Summarize(text string) string {
	sentences := textproc.Sentences(text)
	if len(sentences) == 0 {
		return ""
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = textproc.Words(sent)
		for _, tok := range tokens[i] {
			if !textproc.IsStopword(tok) {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// Length normalisation keeps long sentences from dominating.
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(s.maxSentences, len(scores))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

// Overview summarizes the Business section of a filing, or returns "" when the
// filing has none.
func (s *FrequencySummarizer) Overview(f *domain.Filing) string {
	if f == nil {
		return ""
	}
	sec, ok := f.Sections[BusinessSection]
	if !ok || len(sec.Chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range sec.Chunks {
		b.WriteString(c.ContentWithoutOverlap)
	}
	return s.Summarize(b.String())
}
