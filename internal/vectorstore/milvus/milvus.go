// Package milvus stores filing vectors in a Milvus collection, one partition
// per namespace.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"edgarqa/internal/domain"
)

const (
	fieldID         = "id"
	fieldVector     = "vector"
	fieldCompanyID  = "company_id"
	fieldFiscalYear = "fiscal_year"
	fieldSplit      = "dataset_split"
	fieldSection    = "section"
	fieldItemNumber = "item_number"
	fieldItemName   = "item_name"
	fieldChunkIndex = "chunk_index"
	fieldContent    = "content"
	fieldEmbedder   = "embedder"
)

var outputFields = []string{
	fieldID, fieldCompanyID, fieldFiscalYear, fieldSplit, fieldSection,
	fieldItemNumber, fieldItemName, fieldChunkIndex, fieldContent, fieldEmbedder,
}

type Config struct {
	Address            string
	Username           string
	Password           string
	Collection         string
	HNSWM              int
	HNSWEfConstruction int
	SearchEf           int
}

// Storage implements domain.VectorStore and domain.FilterCounter.
type Storage struct {
	milvus    client.Client
	cfg       Config
	dimension int
}

// NewStorage connects to Milvus.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		cfg.Collection = "edgar_filings"
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEfConstruction <= 0 {
		cfg.HNSWEfConstruction = 200
	}
	if cfg.SearchEf <= 0 {
		cfg.SearchEf = 128
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return &Storage{milvus: mc, cfg: cfg}, nil
}

func (s *Storage) Close() error {
	return s.milvus.Close()
}

// Schema describes the filing collection for vectors of the given dimension.
func Schema(collection string, dimension int) *entity.Schema {
	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{Name: name, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)}}
	}
	id := varchar(fieldID, 256)
	id.PrimaryKey = true
	return &entity.Schema{
		CollectionName: collection,
		Description:    "SEC filing chunks",
		Fields: []*entity.Field{
			id,
			{Name: fieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(dimension)}},
			varchar(fieldCompanyID, 32),
			{Name: fieldFiscalYear, DataType: entity.FieldTypeInt64},
			varchar(fieldSplit, 16),
			varchar(fieldSection, 64),
			varchar(fieldItemNumber, 256),
			varchar(fieldItemName, 1024),
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			varchar(fieldContent, 65535),
			varchar(fieldEmbedder, 128),
		},
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	has, err := s.milvus.HasCollection(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		if err := s.milvus.CreateCollection(ctx, Schema(s.cfg.Collection, dimension), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, s.cfg.HNSWM, s.cfg.HNSWEfConstruction)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := s.milvus.CreateIndex(ctx, s.cfg.Collection, fieldVector, idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvus.LoadCollection(ctx, s.cfg.Collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (s *Storage) ensurePartition(ctx context.Context, partition string) error {
	has, err := s.milvus.HasPartition(ctx, s.cfg.Collection, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if has {
		return nil
	}
	return s.milvus.CreatePartition(ctx, s.cfg.Collection, partition)
}

func (s *Storage) Upsert(ctx context.Context, namespace string, vectors []domain.IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}
	partition := PartitionName(namespace)
	if err := s.ensurePartition(ctx, partition); err != nil {
		return err
	}

	n := len(vectors)
	var (
		ids, companies, splits, sections = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		itemNumbers, itemNames, contents = make([]string, n), make([]string, n), make([]string, n)
		embedders                        = make([]string, n)
		years, indexes                   = make([]int64, n), make([]int64, n)
		embeddings                       = make([][]float32, n)
	)
	for i, v := range vectors {
		if len(v.Embedding) != s.dimension {
			return fmt.Errorf("vector %s: dimension %d, want %d", v.ID, len(v.Embedding), s.dimension)
		}
		m := v.Metadata
		ids[i] = v.ID
		embeddings[i] = v.Embedding
		companies[i] = m.CompanyID
		years[i] = int64(m.FiscalYear)
		splits[i] = string(m.Split)
		sections[i] = m.Section
		itemNumbers[i] = m.ItemNumber
		itemNames[i] = m.ItemName
		indexes[i] = int64(m.ChunkIndex)
		contents[i] = m.Content
		embedders[i] = m.Embedder
	}

	_, err := s.milvus.Upsert(ctx, s.cfg.Collection, partition,
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, s.dimension, embeddings),
		entity.NewColumnVarChar(fieldCompanyID, companies),
		entity.NewColumnInt64(fieldFiscalYear, years),
		entity.NewColumnVarChar(fieldSplit, splits),
		entity.NewColumnVarChar(fieldSection, sections),
		entity.NewColumnVarChar(fieldItemNumber, itemNumbers),
		entity.NewColumnVarChar(fieldItemName, itemNames),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnVarChar(fieldContent, contents),
		entity.NewColumnVarChar(fieldEmbedder, embedders),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, namespace string, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	partition := PartitionName(namespace)
	has, err := s.milvus.HasPartition(ctx, s.cfg.Collection, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.cfg.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}
	results, err := s.milvus.Search(ctx,
		s.cfg.Collection,
		[]string{partition},
		Expr(filter),
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var matches []domain.Match
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			m := domain.Match{Score: float64(result.Scores[i]), Metadata: metadataAt(result.Fields, i)}
			if col, ok := result.Fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
				m.ID = col.Data()[i]
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// Exists runs a scalar query limited to one row.
func (s *Storage) Exists(ctx context.Context, namespace string, filter domain.Filter) (bool, error) {
	partition := PartitionName(namespace)
	has, err := s.milvus.HasPartition(ctx, s.cfg.Collection, partition)
	if err != nil {
		return false, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return false, nil
	}
	expr := Expr(filter)
	if expr == "" {
		expr = fieldID + ` != ""`
	}
	rs, err := s.milvus.Query(ctx, s.cfg.Collection, []string{partition}, expr, []string{fieldID}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to query: %w", err)
	}
	col, ok := rs.GetColumn(fieldID).(*entity.ColumnVarChar)
	return ok && col.Len() > 0, nil
}

func metadataAt(fields client.ResultSet, i int) domain.VectorMetadata {
	str := func(name string) string {
		if col, ok := fields.GetColumn(name).(*entity.ColumnVarChar); ok && i < col.Len() {
			return col.Data()[i]
		}
		return ""
	}
	num := func(name string) int {
		if col, ok := fields.GetColumn(name).(*entity.ColumnInt64); ok && i < col.Len() {
			return int(col.Data()[i])
		}
		return 0
	}
	return domain.VectorMetadata{
		CompanyID:  str(fieldCompanyID),
		FiscalYear: num(fieldFiscalYear),
		Split:      domain.Split(str(fieldSplit)),
		Section:    str(fieldSection),
		ItemNumber: str(fieldItemNumber),
		ItemName:   str(fieldItemName),
		ChunkIndex: num(fieldChunkIndex),
		Content:    str(fieldContent),
		Embedder:   str(fieldEmbedder),
	}
}

// Expr renders a filter as a Milvus boolean expression. An empty filter
// renders as the empty expression.
func Expr(f domain.Filter) string {
	var parts []string
	if f.CompanyID != "" {
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, fieldCompanyID, escape(f.CompanyID)))
	}
	if f.FiscalYear != 0 {
		parts = append(parts, fmt.Sprintf(`%s == %d`, fieldFiscalYear, f.FiscalYear))
	}
	if f.Split != "" {
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, fieldSplit, escape(string(f.Split))))
	}
	return strings.Join(parts, " && ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

var partitionUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// PartitionName maps a namespace to a valid partition name.
func PartitionName(namespace string) string {
	if namespace == "" {
		return "_default"
	}
	return "ns_" + partitionUnsafe.ReplaceAllString(namespace, "_")
}
