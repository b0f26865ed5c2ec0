package domain

import (
	"context"
	"fmt"
	"strings"
)

// Split is the EDGAR-CORPUS dataset split a filing belongs to.
type Split string

const (
	SplitTrain    Split = "train"
	SplitTest     Split = "test"
	SplitValidate Split = "validate"
)

// ParseSplit validates a split name.
func ParseSplit(s string) (Split, error) {
	switch Split(strings.ToLower(strings.TrimSpace(s))) {
	case SplitTrain:
		return SplitTrain, nil
	case SplitTest:
		return SplitTest, nil
	case SplitValidate, "validation":
		return SplitValidate, nil
	}
	return "", fmt.Errorf("unknown dataset split %q (want train, test or validate)", s)
}

// Identity scopes every storage and retrieval operation to a single filing.
type Identity struct {
	CompanyID  string `json:"company_id"`
	FiscalYear int    `json:"fiscal_year"`
	Split      Split  `json:"dataset_split"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%d/%s", id.CompanyID, id.FiscalYear, id.Split)
}

// Validate reports whether all three identity fields are set.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.CompanyID) == "" {
		return fmt.Errorf("company_id is required")
	}
	if id.FiscalYear <= 0 {
		return fmt.Errorf("fiscal_year must be positive")
	}
	if _, err := ParseSplit(string(id.Split)); err != nil {
		return err
	}
	return nil
}

// Filter returns a metadata filter selecting exactly this identity.
func (id Identity) Filter() Filter {
	return Filter{CompanyID: id.CompanyID, FiscalYear: id.FiscalYear, Split: id.Split}
}

// VectorID derives the deterministic id of the ordinal-th chunk of a section.
func VectorID(id Identity, sectionKey string, ordinal int) string {
	return fmt.Sprintf("%s_%d_%s_%d", id.CompanyID, id.FiscalYear, sectionKey, ordinal)
}

// Chunk is the smallest indexed and retrievable unit of filing text.
// Offsets are rune offsets into the section text.
type Chunk struct {
	Content               string `json:"content"`
	ChunkID               string `json:"chunk_id"`
	StartIndex            int    `json:"start_index"`
	EndIndex              int    `json:"end_index"`
	ContentWithoutOverlap string `json:"content_without_overlap"`
}

// Section is one labeled part of a filing, e.g. "Item 7".
type Section struct {
	Name       string  `json:"-"`
	ItemNumber string  `json:"item_number"`
	ItemName   string  `json:"item_name"`
	Chunks     []Chunk `json:"chunks"`
}

// Filing is the chunk bundle produced for one identity.
type Filing struct {
	Identity
	Sections    map[string]*Section
	TotalChunks int
}

// SectionKeys returns the filing's section keys in natural order.
func (f *Filing) SectionKeys() []string {
	keys := make([]string, 0, len(f.Sections))
	for k := range f.Sections {
		keys = append(keys, k)
	}
	SortSectionKeys(keys)
	return keys
}

// RawFiling is a filing record as supplied by the filing source, keyed by field name.
type RawFiling map[string]any

// Filter restricts a vector query. Zero-valued fields are unconstrained.
type Filter struct {
	CompanyID  string
	FiscalYear int
	Split      Split
}

// IsEmpty reports whether the filter places no restriction at all.
func (f Filter) IsEmpty() bool {
	return f.CompanyID == "" && f.FiscalYear == 0 && f.Split == ""
}

// Matches reports whether the metadata satisfies the filter.
func (f Filter) Matches(m VectorMetadata) bool {
	if f.CompanyID != "" && f.CompanyID != m.CompanyID {
		return false
	}
	if f.FiscalYear != 0 && f.FiscalYear != m.FiscalYear {
		return false
	}
	if f.Split != "" && f.Split != m.Split {
		return false
	}
	return true
}

// VectorMetadata is the payload stored alongside every indexed chunk.
type VectorMetadata struct {
	CompanyID  string `json:"company_id"`
	FiscalYear int    `json:"fiscal_year"`
	Split      Split  `json:"dataset_split"`
	Section    string `json:"section"`
	ItemNumber string `json:"item_number"`
	ItemName   string `json:"item_name"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	Embedder   string `json:"embedder,omitempty"`
}

// IndexedVector is an embedded chunk ready to be upserted.
type IndexedVector struct {
	ID        string
	Embedding []float32
	Metadata  VectorMetadata
}

// Match is a vector store hit.
type Match struct {
	ID       string
	Score    float64
	Metadata VectorMetadata
}

// RetrievalResult is one reranked passage.
type RetrievalResult struct {
	ChunkID        string  `json:"chunk_id"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Embedder converts text into fixed-length vectors. The same input must always
// produce the same vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is a metadata-bearing vector index partitioned by namespace.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, namespace string, vectors []IndexedVector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error)
}

// FilterCounter is implemented by stores that can test for stored vectors by
// filter alone, without a similarity search.
type FilterCounter interface {
	Exists(ctx context.Context, namespace string, filter Filter) (bool, error)
}

// Scorer assigns a relevance score to each (query, passage) pair.
type Scorer interface {
	Name() string
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Answerer produces a natural-language answer from a question and its context.
type Answerer interface {
	Answer(ctx context.Context, query, context string) (string, error)
}

// FilingSource supplies raw filing records. found is false when no record exists.
type FilingSource interface {
	Fetch(ctx context.Context, id Identity) (raw RawFiling, found bool, err error)
}

// BundleStore persists processed chunk bundles.
type BundleStore interface {
	Load(ctx context.Context, id Identity) (*Filing, bool, error)
	Save(ctx context.Context, f *Filing) error
}
