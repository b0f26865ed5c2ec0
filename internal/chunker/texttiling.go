package chunker

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"edgarqa/internal/textproc"
)

const (
	minParagraph    = 100
	smoothingWindow = 3
)

var (
	paragraphBreakRe = regexp.MustCompile(`[ \t\r\f\v]*\n[ \t\r\f\v]*\n[ \t\r\f\v]*`)
	tilingWordRe     = regexp.MustCompile(`\w+`)

	errNoParagraphBreaks = errors.New("no paragraph breaks found")
	errTooFewBlocks      = errors.New("too few pseudo-sentences to smooth")
	errNoBoundarySnap    = errors.New("boundary could not be snapped to a paragraph break")
)

// discourse places passage boundaries at the deepest drops in lexical cohesion
// between adjacent blocks of pseudo-sentences, snapped to paragraph breaks.
type discourse struct{}

func (discourse) Method() Method { return MethodDiscourse }

func (discourse) split(text string, cfg Config) ([]span, error) {
	prepared := prepareParagraphs(text)
	tiles, err := tileText(prepared.runes, cfg.WindowSize, cfg.SmoothingWidth)
	if err != nil {
		return nil, err
	}
	spans := make([]span, 0, len(tiles))
	for _, t := range tiles {
		sp := trimSpan(text, span{prepared.mapStart(t.start), prepared.mapEnd(t.end)})
		if sp.end > sp.start {
			spans = append(spans, sp)
		}
	}
	if len(spans) == 0 {
		return nil, errors.New("no passages produced")
	}
	return spans, nil
}

// paragraphLayout is the text rewritten as stripped non-empty lines joined by
// blank lines, with a mapping back to byte offsets of the original.
type paragraphLayout struct {
	runes    []rune
	segments []layoutSegment
	origLen  int
}

// layoutSegment maps runes [at, at+n) of the layout to bytes [orig, origEnd) of the input.
type layoutSegment struct {
	at, n         int
	orig, origEnd int
}

func prepareParagraphs(text string) paragraphLayout {
	type piece struct{ start, end int }
	var lines []piece
	pos := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		sp := trimSpan(text, span{pos, pos + len(line)})
		if sp.end > sp.start {
			lines = append(lines, piece{sp.start, sp.end})
		}
		pos += len(line)
	}
	if len(lines) == 1 {
		// A single paragraph gives the cohesion scorer nothing to compare, so
		// split it at its rune midpoint.
		mid := utf8.RuneCountInString(text) / 2
		cut := 0
		for i := 0; i < mid; i++ {
			_, size := utf8.DecodeRuneInString(text[cut:])
			cut += size
		}
		lines = []piece{{0, cut}, {cut, len(text)}}
	}

	layout := paragraphLayout{origLen: len(text)}
	for i, l := range lines {
		if i > 0 {
			layout.runes = append(layout.runes, '\n', '\n')
		}
		chunk := []rune(text[l.start:l.end])
		layout.segments = append(layout.segments, layoutSegment{at: len(layout.runes), n: len(chunk), orig: l.start, origEnd: l.end})
		layout.runes = append(layout.runes, chunk...)
	}
	return layout
}

func (p paragraphLayout) mapStart(at int) int {
	for _, s := range p.segments {
		if at < s.at+s.n {
			if at <= s.at {
				return s.orig
			}
			return s.orig + len(string(p.runes[s.at:at]))
		}
	}
	return p.origLen
}

func (p paragraphLayout) mapEnd(at int) int {
	for i := len(p.segments) - 1; i >= 0; i-- {
		s := p.segments[i]
		if at > s.at {
			if at >= s.at+s.n {
				return s.origEnd
			}
			return s.orig + len(string(p.runes[s.at:at]))
		}
	}
	return 0
}

// tileText returns rune spans of the layout text, one per topical tile.
func tileText(text []rune, w, k int) ([]span, error) {
	lowered := make([]rune, len(text))
	for i, r := range text {
		lowered[i] = unicode.ToLower(r)
	}
	var kept []rune
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || r == '-' || r == '\'' || r == ' ' || r == '\n' || r == '\t' {
			kept = append(kept, r)
		}
	}
	filtered := string(kept)
	if breaks := paragraphBreaks(filtered); len(breaks) < 2 {
		return nil, errNoParagraphBreaks
	}

	blocks := pseudoSentences(filtered, w)
	scores := blockScores(blocks, k)
	smoothed, err := smooth(scores, smoothingWindow)
	if err != nil {
		return nil, err
	}
	depths := depthScores(smoothed)
	boundaries := identifyBoundaries(depths)
	normalized, err := normalizeBoundaries(text, boundaries, w)
	if err != nil {
		return nil, err
	}

	var tiles []span
	prev := 0
	for _, b := range normalized {
		if b <= prev {
			continue
		}
		tiles = append(tiles, span{prev, b})
		prev = b
	}
	if prev < len(text) {
		tiles = append(tiles, span{prev, len(text)})
	}
	return tiles, nil
}

// paragraphBreaks returns rune offsets where paragraphs end, starting with 0.
// Breaks closer than minParagraph runes to the previous one are ignored.
func paragraphBreaks(text string) []int {
	breaks := []int{0}
	last := 0
	for _, m := range paragraphBreakRe.FindAllStringIndex(text, -1) {
		at := utf8.RuneCountInString(text[:m[0]])
		if at-last >= minParagraph {
			breaks = append(breaks, at)
			last = at
		}
	}
	return breaks
}

// pseudoSentences groups the words of text into blocks of w words with
// stopwords removed, as term-frequency maps.
func pseudoSentences(text string, w int) []map[string]int {
	words := tilingWordRe.FindAllString(text, -1)
	var blocks []map[string]int
	for i := 0; i < len(words); i += w {
		freq := make(map[string]int)
		for _, word := range words[i:min(i+w, len(words))] {
			if !textproc.IsStopword(word) {
				freq[word]++
			}
		}
		blocks = append(blocks, freq)
	}
	return blocks
}

// blockScores returns the cosine similarity across every gap between k
// pseudo-sentences on the left and k on the right, narrowed near the ends.
func blockScores(blocks []map[string]int, k int) []float64 {
	numGaps := len(blocks) - 1
	if numGaps < 1 {
		return nil
	}
	scores := make([]float64, 0, numGaps)
	for gap := 0; gap < numGaps; gap++ {
		window := k
		switch {
		case gap < k-1:
			window = gap + 1
		case gap > numGaps-k:
			window = numGaps - gap
		}
		left := make(map[string]int)
		for _, b := range blocks[gap-window+1 : gap+1] {
			for word, n := range b {
				left[word] += n
			}
		}
		right := make(map[string]int)
		for _, b := range blocks[gap+1 : gap+window+1] {
			for word, n := range b {
				right[word] += n
			}
		}
		var dot, l2, r2 float64
		for word, n := range left {
			dot += float64(n * right[word])
			l2 += float64(n * n)
		}
		for _, n := range right {
			r2 += float64(n * n)
		}
		score := 0.0
		if denom := math.Sqrt(l2 * r2); denom != 0 {
			score = dot / denom
		}
		scores = append(scores, score)
	}
	return scores
}

// smooth applies a centered moving average of the given window length after
// reflecting the series about both end points.
func smooth(x []float64, window int) ([]float64, error) {
	n := len(x)
	if n < window {
		return nil, errTooFewBlocks
	}
	if window < 3 {
		return append([]float64(nil), x...), nil
	}
	var padded []float64
	for i := min(window, n-1); i >= 2; i-- {
		padded = append(padded, 2*x[0]-x[i])
	}
	padded = append(padded, x...)
	for i := n - 1; i > n-window; i-- {
		padded = append(padded, 2*x[n-1]-x[i])
	}

	m := len(padded)
	half := (window - 1) / 2
	averaged := make([]float64, m)
	for i := range averaged {
		var sum float64
		for j := 0; j < window; j++ {
			if idx := i + half - j; idx >= 0 && idx < m {
				sum += padded[idx]
			}
		}
		averaged[i] = sum / float64(window)
	}
	if m-(window-1) <= window-1 {
		return nil, errTooFewBlocks
	}
	return averaged[window-1 : m-(window-1)], nil
}

// depthScores measures how far each gap sits below the highest peaks reachable
// on its left and right before the score starts falling again.
func depthScores(scores []float64) []float64 {
	depths := make([]float64, len(scores))
	clip := min(max(len(scores)/10, 2), 5)
	for i := clip; i < len(scores)-clip; i++ {
		gap := scores[i]
		lpeak := gap
		for j := i; j >= 0; j-- {
			if scores[j] < lpeak {
				break
			}
			lpeak = scores[j]
		}
		rpeak := gap
		for j := i; j < len(scores); j++ {
			if scores[j] < rpeak {
				break
			}
			rpeak = scores[j]
		}
		depths[i] = lpeak + rpeak - 2*gap
	}
	return depths
}

// identifyBoundaries marks gaps deeper than mean - stddev/2, deepest first,
// skipping any gap fewer than four positions from an accepted boundary.
func identifyBoundaries(depths []float64) []int {
	boundaries := make([]int, len(depths))
	if len(depths) == 0 {
		return boundaries
	}
	var sum float64
	for _, d := range depths {
		sum += d
	}
	mean := sum / float64(len(depths))
	var variance float64
	for _, d := range depths {
		variance += (d - mean) * (d - mean)
	}
	cutoff := mean - math.Sqrt(variance/float64(len(depths)))/2

	order := make([]int, len(depths))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		da, db := depths[order[a]], depths[order[b]]
		if da != db {
			return da > db
		}
		return order[a] > order[b]
	})
	for _, i := range order {
		if depths[i] <= cutoff {
			continue
		}
		suppressed := false
		for j := max(i-3, 0); j < min(i+4, len(boundaries)); j++ {
			if boundaries[j] == 1 {
				suppressed = true
				break
			}
		}
		if !suppressed {
			boundaries[i] = 1
		}
	}
	return boundaries
}

// normalizeBoundaries converts gap boundaries into rune offsets of text, each
// snapped to the closest paragraph break.
func normalizeBoundaries(text []rune, boundaries []int, w int) ([]int, error) {
	breaks := paragraphBreaks(string(text))
	var (
		normalized []int
		charCount  int
		wordCount  int
		gapsSeen   int
		seenWord   bool
	)
	for _, r := range text {
		charCount++
		isBlank := r == ' ' || r == '\t' || r == '\n'
		if isBlank && seenWord {
			seenWord = false
			wordCount++
		}
		if !isBlank && !seenWord {
			seenWord = true
		}
		if gapsSeen < len(boundaries) && wordCount > max(gapsSeen*w, w) {
			if boundaries[gapsSeen] == 1 {
				best := len(text)
				chosen := -1
				for _, br := range breaks {
					dist := abs(br - charCount)
					if best <= dist {
						break
					}
					best = dist
					chosen = br
				}
				if chosen < 0 {
					return nil, errNoBoundarySnap
				}
				if !containsInt(normalized, chosen) {
					normalized = append(normalized, chosen)
				}
			}
			gapsSeen++
		}
	}
	return normalized, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
