package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"edgarqa/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// When opened with a path it snapshots itself to that file after every write.
type Storage struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]domain.IndexedVector
	order      map[string][]string
	path       string
}

func NewStorage() *Storage {
	return &Storage{
		namespaces: make(map[string]map[string]domain.IndexedVector),
		order:      make(map[string][]string),
	}
}

type snapshot struct {
	Dimension  int                                `json:"dimension"`
	Namespaces map[string][]domain.IndexedVector `json:"namespaces"`
}

// Open returns a store persisted to path, loading it when the file exists.
func Open(path string) (*Storage, error) {
	s := NewStorage()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s.dimension = snap.Dimension
	for ns, vectors := range snap.Namespaces {
		for _, v := range vectors {
			s.put(ns, v)
		}
	}
	return s, nil
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && s.count() > 0 {
		return fmt.Errorf("store holds %d-dimensional vectors, got %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, namespace string, vectors []domain.IndexedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v.Embedding) != s.dimension {
			return fmt.Errorf("vector %s: dimension %d, want %d", v.ID, len(v.Embedding), s.dimension)
		}
	}
	for _, v := range vectors {
		s.put(namespace, v)
	}
	return s.save()
}

func (s *Storage) put(namespace string, v domain.IndexedVector) {
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]domain.IndexedVector)
		s.namespaces[namespace] = ns
	}
	if _, exists := ns[v.ID]; !exists {
		s.order[namespace] = append(s.order[namespace], v.ID)
	}
	ns[v.ID] = v
}

func (s *Storage) Query(ctx context.Context, namespace string, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	var candidates []domain.IndexedVector
	for _, id := range s.order[namespace] {
		v := s.namespaces[namespace][id]
		if filter.Matches(v.Metadata) {
			candidates = append(candidates, v)
		}
	}
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = cosine(candidates[i].Embedding, vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.Match, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.Match{ID: candidates[j].ID, Score: scores[j], Metadata: candidates[j].Metadata})
	}
	return results, nil
}

// Exists scans namespace for a vector satisfying filter.
func (s *Storage) Exists(_ context.Context, namespace string, filter domain.Filter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.namespaces[namespace] {
		if filter.Matches(v.Metadata) {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of vectors stored in namespace.
func (s *Storage) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func (s *Storage) count() int {
	n := 0
	for _, ns := range s.namespaces {
		n += len(ns)
	}
	return n
}

func (s *Storage) save() error {
	if s.path == "" {
		return nil
	}
	snap := snapshot{Dimension: s.dimension, Namespaces: make(map[string][]domain.IndexedVector, len(s.namespaces))}
	for ns, ids := range s.order {
		for _, id := range ids {
			snap.Namespaces[ns] = append(snap.Namespaces[ns], s.namespaces[ns][id])
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// argsortDesc orders indexes by descending value; equal values keep insertion order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
