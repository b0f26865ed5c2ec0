package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer splits text into token pieces whose concatenation is the text.
type Tokenizer interface {
	Name() string
	Pieces(text string) ([]string, error)
}

var loaderOnce sync.Once

// BPETokenizer is a byte-pair tokenizer backed by tiktoken with the bundled
// offline vocabularies, so no network access is needed.
type BPETokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewBPETokenizer loads the named encoding, e.g. "r50k_base" (the GPT-2 vocabulary).
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPETokenizer{name: encoding, enc: enc}, nil
}

func (t *BPETokenizer) Name() string { return t.name }

// Pieces decodes every token on its own. A piece may hold a partial UTF-8
// sequence; the window builder moves such cuts to the next rune boundary.
func (t *BPETokenizer) Pieces(text string) ([]string, error) {
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, len(ids))
	total := 0
	for i, id := range ids {
		pieces[i] = t.enc.Decode([]int{id})
		total += len(pieces[i])
	}
	if total != len(text) {
		return nil, fmt.Errorf("%s: decoded %d bytes, want %d", t.name, total, len(text))
	}
	return pieces, nil
}

var wordPieceRe = regexp.MustCompile(`\s*\S+`)

// WordTokenizer treats every whitespace-delimited word, together with the
// whitespace before it, as one token. Trailing whitespace joins the last token.
type WordTokenizer struct{}

func (WordTokenizer) Name() string { return "word" }

func (WordTokenizer) Pieces(text string) ([]string, error) {
	pieces := wordPieceRe.FindAllString(text, -1)
	consumed := 0
	for _, p := range pieces {
		consumed += len(p)
	}
	if rest := text[consumed:]; rest != "" {
		if len(pieces) == 0 {
			return []string{rest}, nil
		}
		pieces[len(pieces)-1] += rest
	}
	return pieces, nil
}

// NewTokenizer returns the tokenizer named by name: "word" or a tiktoken encoding.
func NewTokenizer(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "word", "words":
		return WordTokenizer{}, nil
	case "", "gpt2":
		return NewBPETokenizer("r50k_base")
	default:
		return NewBPETokenizer(name)
	}
}
