package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgarqa/internal/apperr"
)

type stubAnswerer struct {
	text  string
	err   error
	calls int
}

func (s *stubAnswerer) Answer(context.Context, string, string) (string, error) {
	s.calls++
	return s.text, s.err
}

type outcomes []string

func (o *outcomes) Answer(outcome string) { *o = append(*o, outcome) }

func TestGenerate(t *testing.T) {
	t.Run("answers with chunk ids", func(t *testing.T) {
		stub := &stubAnswerer{text: "  $265.6 billion. \n"}
		rec := &outcomes{}
		a, err := NewGenerator(stub, 0, rec).Generate(context.Background(), "net sales?", "ctx", []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, Answer{Text: "$265.6 billion.", ChunkIDs: []string{"a", "b"}}, a)
		assert.Equal(t, outcomes{"ok"}, *rec)
	})

	t.Run("empty context skips the model", func(t *testing.T) {
		stub := &stubAnswerer{text: "unused"}
		a, err := NewGenerator(stub, 0, nil).Generate(context.Background(), "net sales?", "  ", []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, NotFoundAnswer, a.Text)
		assert.Empty(t, a.ChunkIDs)
		assert.Zero(t, stub.calls)
	})

	t.Run("failure yields sentinel text and no chunk ids", func(t *testing.T) {
		stub := &stubAnswerer{err: errors.New("rate limited")}
		a, err := NewGenerator(stub, 0, nil).Generate(context.Background(), "net sales?", "ctx", []string{"a"})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindAnswerGenerationFailure))
		assert.Equal(t, "Error generating answer: rate limited", a.Text)
		assert.Empty(t, a.ChunkIDs)
	})
}

func TestPromptIncludesExamplesContextAndQuestion(t *testing.T) {
	p, err := DefaultPrompt()
	require.NoError(t, err)
	out, err := p.Render("What was net sales?", "Net sales were $1.")
	require.NoError(t, err)

	assert.Contains(t, out, "Example 1:\nContext: As of October 19, 2018")
	assert.Contains(t, out, "Example 5:")
	assert.Contains(t, out, `say "`+NotFoundAnswer+`"`)
	assert.Contains(t, out, "Context:\nNet sales were $1.\n\nQuestion: What was net sales?")
	assert.True(t, strings.HasSuffix(out, "Answer:"))
}

func TestParseExamples(t *testing.T) {
	ex, err := ParseExamples([]byte("examples:\n  - context: c\n    query: q\n    expected_answer: a\n"))
	require.NoError(t, err)
	assert.Equal(t, []Example{{Context: "c", Query: "q", ExpectedAnswer: "a"}}, ex)

	_, err = ParseExamples([]byte("examples: ["))
	require.Error(t, err)
}

func TestChatClient(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" 132,000 employees. "}}]}`))
	}))
	defer srv.Close()
	t.Setenv("TEST_CHAT_KEY", "secret")

	c, err := NewChatClient(ChatConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_CHAT_KEY", Model: "m"}, nil)
	require.NoError(t, err)
	text, err := c.Answer(context.Background(), "headcount?", "The Company had 132,000 employees.")
	require.NoError(t, err)

	assert.Equal(t, "132,000 employees.", text)
	assert.Equal(t, "m", got.Model)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "Question: headcount?")
}

func TestChatClientErrors(t *testing.T) {
	t.Setenv("TEST_CHAT_KEY", "")
	_, err := NewChatClient(ChatConfig{BaseURL: "https://api.example.com", APIKeyEnv: "TEST_CHAT_KEY"}, nil)
	require.ErrorContains(t, err, "TEST_CHAT_KEY")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	c, err := NewChatClient(ChatConfig{BaseURL: strings.Replace(srv.URL, "127.0.0.1", "localhost", 1), APIKeyEnv: "TEST_CHAT_KEY"}, nil)
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "q", "c")
	require.ErrorContains(t, err, "no choices")
}

func TestExtractive(t *testing.T) {
	ctx := "The Company had approximately 132,000 full-time equivalent employees.\n\n(Source: x_1)\n\n" +
		"Net sales increased to 265 billion dollars.\n\n(Source: x_2)"
	got, err := Extractive{}.Answer(context.Background(), "What were net sales?", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Net sales increased to 265 billion dollars.", got)

	got, err = Extractive{}.Answer(context.Background(), "dividend declared", ctx)
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, got)
}
