package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"edgarqa/internal/domain"
)

const business = "Apple designs smartphones. " +
	"The weather was pleasant. " +
	"Apple sells smartphones and services worldwide. " +
	"Services include the App Store."

func TestSummarizeKeepsTopSentencesInOrder(t *testing.T) {
	got := NewFrequencySummarizer(2).Summarize(business)
	assert.Equal(t, "Apple designs smartphones. Apple sells smartphones and services worldwide.", got)
}

func TestSummarizeShortText(t *testing.T) {
	s := NewFrequencySummarizer(0)
	assert.Equal(t, "", s.Summarize("   "))
	assert.Equal(t, "No terminator here", s.Summarize(" No terminator here "))
	assert.Equal(t, business, s.Summarize(business))
}

func TestOverview(t *testing.T) {
	s := NewFrequencySummarizer(1)
	f := &domain.Filing{Sections: map[string]*domain.Section{
		BusinessSection: {Chunks: []domain.Chunk{
			{ContentWithoutOverlap: "Apple designs smartphones. "},
			{ContentWithoutOverlap: "Apple sells smartphones worldwide."},
		}},
	}}
	assert.Equal(t, "Apple sells smartphones worldwide.", s.Overview(f))
	assert.Equal(t, "", s.Overview(&domain.Filing{}))
	assert.Equal(t, "", s.Overview(nil))
}
