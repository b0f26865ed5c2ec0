package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgarqa/internal/apperr"
)

type byteTokenizer struct{}

func (byteTokenizer) Name() string { return "byte" }

func (byteTokenizer) Pieces(text string) ([]string, error) {
	pieces := make([]string, len(text))
	for i := 0; i < len(text); i++ {
		pieces[i] = text[i : i+1]
	}
	return pieces, nil
}

type failingTokenizer struct{}

func (failingTokenizer) Name() string { return "failing" }

func (failingTokenizer) Pieces(string) ([]string, error) { return nil, errors.New("vocabulary missing") }

type panickingTokenizer struct{}

func (panickingTokenizer) Name() string { return "panicking" }

func (panickingTokenizer) Pieces(string) ([]string, error) { panic("index out of range") }

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
	}{
		{"fixed-window", MethodFixedWindow},
		{"character_and_token", MethodFixedWindow},
		{"Discourse", MethodDiscourse},
		{"nltk", MethodDiscourse},
		{"token-window", MethodTokenWindow},
		{"gpt2", MethodTokenWindow},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMethod("sentence")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnsupportedMethod))
	assert.True(t, apperr.KindOf(err).Fatal())
}

func TestSegmentUnsupportedMethod(t *testing.T) {
	seg := NewSegmenter(WordTokenizer{})
	_, err := seg.Segment(context.Background(), "Item 1. Business", Method("semantic"), DefaultConfig())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnsupportedMethod))
}

func TestSegmentRejectsEmptyText(t *testing.T) {
	seg := NewSegmenter(WordTokenizer{})
	for _, m := range []Method{MethodFixedWindow, MethodDiscourse, MethodTokenWindow} {
		_, err := seg.Segment(context.Background(), " \n\t ", m, DefaultConfig())
		assert.ErrorIs(t, err, ErrEmptyText, m)
	}
}

func TestFixedWindowShortSection(t *testing.T) {
	text := "Item 1. Business\nWe sell widgets."
	seg := NewSegmenter(WordTokenizer{})

	chunks, err := seg.Segment(context.Background(), text, MethodFixedWindow, Config{ChunkSize: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, text, chunks[0].ContentWithoutOverlap)
	assert.Equal(t, "0", chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[0].StartIndex)
	assert.Equal(t, utf8.RuneCountInString(text), chunks[0].EndIndex)
}

func TestFixedWindowReconstructsText(t *testing.T) {
	text := "Item 7. Management's Discussion\n" +
		"Net sales increased 12% compared to the prior year, driven by higher unit volumes. " +
		"Gross margin was flat.\n\n" +
		"Liquidity remained strong. Cash and cash equivalents totaled $4.2 billion at year end.\n" +
		"We paid a quarterly cash dividend of $0.25 per share. Über-Verkäufe blieben stabil."
	seg := NewSegmenter(WordTokenizer{})

	chunks, err := seg.Segment(context.Background(), text, MethodFixedWindow, Config{ChunkSize: 50, TokensPerChunk: 5})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var content, withoutOverlap strings.Builder
	runes := []rune(text)
	for i, c := range chunks {
		content.WriteString(c.Content)
		withoutOverlap.WriteString(c.ContentWithoutOverlap)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 50)
		assert.Equal(t, c.Content, string(runes[c.StartIndex:c.EndIndex]))
		if i > 0 {
			assert.Equal(t, chunks[i-1].EndIndex, c.StartIndex)
		}
	}
	assert.Equal(t, text, content.String())
	assert.Equal(t, text, withoutOverlap.String())
}

func TestFixedWindowOverlap(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 10))
	seg := NewSegmenter(WordTokenizer{})

	chunks, err := seg.Segment(context.Background(), text, MethodFixedWindow, Config{ChunkSize: 30, ChunkOverlap: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	overlapping := 0
	var rebuilt strings.Builder
	for i, c := range chunks {
		rebuilt.WriteString(c.ContentWithoutOverlap)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 30)
		if i > 0 && c.StartIndex < chunks[i-1].EndIndex {
			overlapping++
		}
	}
	assert.Positive(t, overlapping)
	assert.Equal(t, text, rebuilt.String())
}

func TestTokenWindow(t *testing.T) {
	seg := NewSegmenter(WordTokenizer{})
	chunks, err := seg.Segment(context.Background(), "one two three four five six seven", MethodTokenWindow, Config{TokensPerChunk: 3})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "one two three", chunks[0].Content)
	assert.Equal(t, " four five six", chunks[1].Content)
	assert.Equal(t, " seven", chunks[2].Content)
	assert.Equal(t, []string{"0", "1", "2"}, []string{chunks[0].ChunkID, chunks[1].ChunkID, chunks[2].ChunkID})
}

func TestTokenWindowsRespectRuneBoundaries(t *testing.T) {
	text := "héllo wörld"
	windows, err := tokenWindows(byteTokenizer{}, text, 2)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, w := range windows {
		part := text[w.start:w.end]
		assert.True(t, utf8.ValidString(part), "window %q splits a rune", part)
		rebuilt.WriteString(part)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestTokenizerFailureIsSegmentationFailure(t *testing.T) {
	seg := NewSegmenter(failingTokenizer{})
	_, err := seg.Segment(context.Background(), "Item 1. Business", MethodTokenWindow, DefaultConfig())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSegmentationFailure))

	seg = NewSegmenter(panickingTokenizer{})
	_, err = seg.Segment(context.Background(), "Item 1. Business", MethodFixedWindow, DefaultConfig())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSegmentationFailure))
}

func TestDiscourseSingleParagraphFallsBack(t *testing.T) {
	seg := NewSegmenter(nil)
	text := "  We sell widgets worldwide.  "

	chunks, err := seg.Segment(context.Background(), text, MethodDiscourse, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "We sell widgets worldwide.", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].StartIndex)
}

func TestDiscourseLongText(t *testing.T) {
	topics := []string{
		"The company designs and manufactures industrial pumps and valves for refineries. Pump revenue grew as refineries replaced aging valves and pump assemblies across their plants.",
		"Employees numbered roughly twelve thousand people at year end. Employee retention programs, employee training and hiring of engineers expanded the workforce in every region.",
		"Cash dividends were declared each quarter. The board approved a quarterly cash dividend and a share repurchase program funded from operating cash and existing cash reserves.",
		"Litigation risk remains present. Several lawsuits allege patent infringement and the company intends to defend each lawsuit vigorously in federal court and before regulators.",
	}
	var paragraphs []string
	for _, p := range topics {
		paragraphs = append(paragraphs, p, p+" "+p)
	}
	text := strings.Join(paragraphs, "\n\n")
	seg := NewSegmenter(nil)

	chunks, err := seg.Segment(context.Background(), text, MethodDiscourse, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		assert.Equal(t, strings.TrimSpace(c.Content), c.Content)
		assert.Equal(t, c.Content, string(runes[c.StartIndex:c.EndIndex]))
	}
}

func TestSegmentIsDeterministic(t *testing.T) {
	text := strings.Repeat("Revenue rose on strong demand. Costs fell.\n", 30)
	seg := NewSegmenter(WordTokenizer{})
	cfg := Config{ChunkSize: 120, TokensPerChunk: 10}
	for _, m := range []Method{MethodFixedWindow, MethodDiscourse, MethodTokenWindow} {
		first, err := seg.Segment(context.Background(), text, m, cfg)
		require.NoError(t, err)
		second, err := seg.Segment(context.Background(), text, m, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, second, m)
	}
}

func TestBPETokenizerPiecesRebuildText(t *testing.T) {
	tok, err := NewTokenizer("gpt2")
	require.NoError(t, err)
	assert.Equal(t, "r50k_base", tok.Name())

	text := "Net sales were $1,234 million in fiscal 2018."
	pieces, err := tok.Pieces(text)
	require.NoError(t, err)
	assert.Greater(t, len(pieces), 1)
	assert.Equal(t, text, strings.Join(pieces, ""))
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ChunkSize: 10, ChunkOverlap: 10}.WithDefaults()
	assert.Equal(t, 10, cfg.ChunkSize)
	assert.Zero(t, cfg.ChunkOverlap)
	assert.Equal(t, 200, cfg.TokensPerChunk)
	assert.Equal(t, 20, cfg.WindowSize)
	assert.Equal(t, 10, cfg.SmoothingWidth)
	assert.Equal(t, DefaultSeparators, cfg.Separators)
}
