package chunker

import (
	"fmt"
	"unicode/utf8"
)

// tokenWindow emits consecutive non-overlapping token windows.
type tokenWindow struct{ tok Tokenizer }

func (tokenWindow) Method() Method { return MethodTokenWindow }

func (t tokenWindow) split(text string, cfg Config) ([]span, error) {
	if t.tok == nil {
		return nil, fmt.Errorf("token-window: no tokenizer configured")
	}
	return tokenWindows(t.tok, text, cfg.TokensPerChunk)
}

// tokenWindows groups the tokenizer pieces of text into windows of size tokens
// and returns their byte spans. A cut that falls inside a multi-byte rune is
// moved forward to the next rune boundary.
func tokenWindows(tok Tokenizer, text string, size int) ([]span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tokens per chunk must be positive, got %d", size)
	}
	pieces, err := tok.Pieces(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize with %s: %w", tok.Name(), err)
	}
	var (
		windows []span
		start   int
		pos     int
	)
	for i, p := range pieces {
		pos += len(p)
		if (i+1)%size != 0 && i != len(pieces)-1 {
			continue
		}
		end := pos
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
		if end > start {
			windows = append(windows, span{start, end})
			start = end
		}
	}
	if start < len(text) {
		windows = append(windows, span{start, len(text)})
	}
	return windows, nil
}
