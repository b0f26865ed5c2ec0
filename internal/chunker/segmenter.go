// Package chunker splits filing section text into passages and assembles the
// per-filing chunk bundle.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
)

// Method selects a segmentation strategy.
type Method string

const (
	// MethodFixedWindow splits recursively on paragraphs, lines, sentences,
	// words and characters, then re-splits every window into token windows.
	MethodFixedWindow Method = "fixed-window"
	// MethodDiscourse places boundaries where lexical cohesion drops (TextTiling).
	MethodDiscourse Method = "discourse"
	// MethodTokenWindow emits fixed-size token windows.
	MethodTokenWindow Method = "token-window"
)

// ErrEmptyText is returned for empty or whitespace-only input.
var ErrEmptyText = errors.New("text is empty")

// ParseMethod resolves a method name. The names used by earlier releases
// (character_and_token, nltk, gpt2) are accepted as aliases.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(MethodFixedWindow), "character_and_token":
		return MethodFixedWindow, nil
	case string(MethodDiscourse), "nltk", "texttiling":
		return MethodDiscourse, nil
	case string(MethodTokenWindow), "gpt2":
		return MethodTokenWindow, nil
	}
	return "", apperr.Wrap(fmt.Errorf("unsupported method %q", name), apperr.KindUnsupportedMethod, "chunker.ParseMethod")
}

// Config holds every tunable of a segmentation call. It is passed by value so a
// call never observes settings left behind by another.
type Config struct {
	// ChunkSize is the maximum rune length of a lexical window.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the rune budget shared by consecutive lexical windows.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// TokensPerChunk is the token window size.
	TokensPerChunk int `yaml:"tokens_per_chunk" json:"tokens_per_chunk"`
	// WindowSize is the pseudo-sentence length, in words, of the discourse method.
	WindowSize int `yaml:"window_size" json:"window_size"`
	// SmoothingWidth is the number of pseudo-sentences compared on each side of a gap.
	SmoothingWidth int `yaml:"smoothing_width" json:"smoothing_width"`
	// Separators are tried in order by the lexical splitter.
	Separators []string `yaml:"separators,omitempty" json:"separators,omitempty"`
}

// DefaultSeparators is the lexical split priority list.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// DefaultConfig returns the stock segmentation settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		ChunkOverlap:   0,
		TokensPerChunk: 200,
		WindowSize:     20,
		SmoothingWidth: 10,
		Separators:     DefaultSeparators,
	}
}

// WithDefaults returns a copy of c with unset fields taken from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 0
	}
	if c.TokensPerChunk <= 0 {
		c.TokensPerChunk = d.TokensPerChunk
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.SmoothingWidth <= 0 {
		c.SmoothingWidth = d.SmoothingWidth
	}
	if len(c.Separators) == 0 {
		c.Separators = d.Separators
	} else {
		c.Separators = append([]string(nil), c.Separators...)
	}
	return c
}

// span is a half-open byte range of the segmented text.
type span struct{ start, end int }

// Strategy is one segmentation method.
type Strategy interface {
	Method() Method
	split(text string, cfg Config) ([]span, error)
}

// Segmenter dispatches segmentation calls to the strategy named by the method.
// It holds no per-call state; the tokenizer is shared read-only.
type Segmenter struct {
	strategies map[Method]Strategy
}

// NewSegmenter creates a segmenter whose token-based strategies use tok.
func NewSegmenter(tok Tokenizer) *Segmenter {
	return &Segmenter{strategies: map[Method]Strategy{
		MethodFixedWindow: fixedWindow{tok: tok},
		MethodDiscourse:   discourse{},
		MethodTokenWindow: tokenWindow{tok: tok},
	}}
}

// Segment splits text into ordered passages. Chunk ids are the passage
// ordinals; callers that know the filing identity replace them.
func (s *Segmenter) Segment(ctx context.Context, text string, method Method, cfg Config) ([]domain.Chunk, error) {
	strategy, ok := s.strategies[method]
	if !ok {
		return nil, apperr.Wrap(fmt.Errorf("unsupported method %q", method), apperr.KindUnsupportedMethod, "chunker.Segment")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Wrap(ErrEmptyText, apperr.KindInvalidInput, "chunker.Segment")
	}
	cfg = cfg.WithDefaults()

	spans, err := runStrategy(strategy, text, cfg)
	if err != nil {
		if method != MethodDiscourse {
			return nil, apperr.Wrap(err, apperr.KindSegmentationFailure, "chunker.Segment")
		}
		logger.Debug(ctx, "discourse segmentation fell back to whole text",
			"error", apperr.Wrap(err, apperr.KindSegmentationFailure, "chunker.Segment").Error())
		spans = []span{trimSpan(text, span{0, len(text)})}
	}
	return buildChunks(text, spans), nil
}

func runStrategy(strategy Strategy, text string, cfg Config) (spans []span, err error) {
	defer func() {
		if r := recover(); r != nil {
			spans, err = nil, fmt.Errorf("%s strategy panicked: %v", strategy.Method(), r)
		}
	}()
	return strategy.split(text, cfg)
}

// buildChunks converts byte spans into chunks with rune offsets. Whitespace-only
// spans are dropped; ContentWithoutOverlap starts where the previous kept chunk
// ended, so concatenating it across chunks restores the text up to the last end.
func buildChunks(text string, spans []span) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(spans))
	prevEnd := 0
	for _, sp := range spans {
		content := text[sp.start:sp.end]
		if strings.TrimSpace(content) == "" {
			continue
		}
		from := prevEnd
		if from > sp.end {
			from = sp.end
		}
		chunks = append(chunks, domain.Chunk{
			Content:               content,
			ChunkID:               strconv.Itoa(len(chunks)),
			StartIndex:            utf8.RuneCountInString(text[:sp.start]),
			EndIndex:              utf8.RuneCountInString(text[:sp.end]),
			ContentWithoutOverlap: text[from:sp.end],
		})
		if sp.end > prevEnd {
			prevEnd = sp.end
		}
	}
	return chunks
}

func trimSpan(text string, sp span) span {
	for sp.start < sp.end {
		r, size := utf8.DecodeRuneInString(text[sp.start:])
		if !isSpace(r) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		r, size := utf8.DecodeLastRuneInString(text[:sp.end])
		if !isSpace(r) {
			break
		}
		sp.end -= size
	}
	return sp
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x85, 0xA0:
		return true
	}
	return false
}
