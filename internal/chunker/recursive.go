package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// recursiveSplitter splits on the first separator present in the text and
// recurses with the remaining separators into pieces still longer than the
// window. Separators stay attached to the start of the following piece and
// windows are not trimmed, so with zero overlap the windows tile the text.
type recursiveSplitter struct {
	size       int
	overlap    int
	separators []string
}

func (s recursiveSplitter) split(text string) []span {
	return s.splitAt(text, 0, s.separators)
}

func (s recursiveSplitter) splitAt(text string, offset int, separators []string) []span {
	sep := ""
	var rest []string
	if len(separators) > 0 {
		sep = separators[len(separators)-1]
	}
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out, small []span
	for _, p := range splitKeepingSeparator(text, offset, sep) {
		if utf8.RuneCountInString(text[p.start-offset:p.end-offset]) < s.size {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(text, offset, small)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, s.splitAt(text[p.start-offset:p.end-offset], p.start, rest)...)
	}
	if len(small) > 0 {
		out = append(out, s.merge(text, offset, small)...)
	}
	return out
}

// merge packs contiguous pieces into windows of at most size runes. When a
// window closes, pieces are dropped from its front until at most overlap runes
// remain to seed the next window.
func (s recursiveSplitter) merge(text string, offset int, pieces []span) []span {
	length := func(p span) int {
		return utf8.RuneCountInString(text[p.start-offset : p.end-offset])
	}
	var (
		windows []span
		current []span
		total   int
	)
	for _, p := range pieces {
		n := length(p)
		if total+n > s.size && len(current) > 0 {
			windows = append(windows, span{current[0].start, current[len(current)-1].end})
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		windows = append(windows, span{current[0].start, current[len(current)-1].end})
	}
	return windows
}

// splitKeepingSeparator cuts text before every occurrence of sep. An empty
// separator cuts between runes. Empty pieces are dropped.
func splitKeepingSeparator(text string, offset int, sep string) []span {
	var pieces []span
	if sep == "" {
		for i, r := range text {
			pieces = append(pieces, span{offset + i, offset + i + utf8.RuneLen(r)})
		}
		return pieces
	}
	cuts := []int{0}
	for i := 0; i < len(text); {
		idx := strings.Index(text[i:], sep)
		if idx < 0 {
			break
		}
		cuts = append(cuts, i+idx)
		i += idx + len(sep)
	}
	cuts = append(cuts, len(text))
	for i := 1; i < len(cuts); i++ {
		if cuts[i] > cuts[i-1] {
			pieces = append(pieces, span{offset + cuts[i-1], offset + cuts[i]})
		}
	}
	return pieces
}

// fixedWindow is the lexical-then-token strategy.
type fixedWindow struct{ tok Tokenizer }

func (fixedWindow) Method() Method { return MethodFixedWindow }

func (f fixedWindow) split(text string, cfg Config) ([]span, error) {
	if f.tok == nil {
		return nil, fmt.Errorf("fixed-window: no tokenizer configured")
	}
	lexical := recursiveSplitter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap, separators: cfg.Separators}
	var out []span
	for _, w := range lexical.split(text) {
		windows, err := tokenWindows(f.tok, text[w.start:w.end], cfg.TokensPerChunk)
		if err != nil {
			return nil, err
		}
		for _, tw := range windows {
			out = append(out, span{w.start + tw.start, w.start + tw.end})
		}
	}
	return out, nil
}
