package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"the", "company's", "net", "sales", "rose"}, Words("The Company's net sales rose 5%."))
	assert.Empty(t, Words("2018 $1,000"))
}

func TestContentWords(t *testing.T) {
	assert.Equal(t, []string{"company", "sells", "widgets"}, ContentWords("The company sells widgets to us."))
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"Net sales rose.", "Costs fell!"}, Sentences("Net sales rose. Costs fell!"))
	assert.Equal(t, []string{"No terminator"}, Sentences("  No terminator "))
	assert.Nil(t, Sentences("   "))
}

func TestWordSet(t *testing.T) {
	set := WordSet("cash and cash equivalents")
	assert.Len(t, set, 3)
	assert.Contains(t, set, "cash")
}
