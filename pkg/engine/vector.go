package engine

import (
	"math"
	"sort"

	"github.com/lumadb/luma/pkg/lumaerr"
)

type vectorRecord struct {
	id      string
	vec     []float64
	payload []byte
}

// vectorCollection is a brute-force nearest-neighbor index: the spec
// names vector_search as part of the façade's stable surface without
// requiring a specific ANN algorithm, and the module's scope (spec.md's
// Non-goals) excludes an ANN index implementation, so exact cosine
// similarity over a flat scan is the correct-by-definition fallback.
type vectorCollection struct {
	dim     int
	records map[string]*vectorRecord
}

// CreateVectorCollection registers a new named vector collection with
// fixed dimensionality dim.
func (e *Engine) CreateVectorCollection(name string, dim int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.vectors[name]; ok {
		return lumaerr.New("engine.CreateVectorCollection", lumaerr.AlreadyExists)
	}
	e.vectors[name] = &vectorCollection{dim: dim, records: make(map[string]*vectorRecord)}
	return nil
}

// VectorUpsert inserts or replaces one vector's payload.
func (e *Engine) VectorUpsert(collection, id string, vec []float64, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	vc, ok := e.vectors[collection]
	if !ok {
		return lumaerr.New("engine.VectorUpsert", lumaerr.NotFound)
	}
	if len(vec) != vc.dim {
		return lumaerr.New("engine.VectorUpsert", lumaerr.InvalidRequest)
	}
	vc.records[id] = &vectorRecord{id: id, vec: vec, payload: payload}
	return nil
}

// VectorMatch is one vector_search result.
type VectorMatch struct {
	ID      string
	Score   float64
	Payload []byte
}

// VectorSearch returns the k nearest records to query by cosine
// similarity, highest score first.
func (e *Engine) VectorSearch(collection string, query []float64, k int) ([]VectorMatch, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vc, ok := e.vectors[collection]
	if !ok {
		return nil, lumaerr.New("engine.VectorSearch", lumaerr.NotFound)
	}
	if len(query) != vc.dim {
		return nil, lumaerr.New("engine.VectorSearch", lumaerr.InvalidRequest)
	}

	matches := make([]VectorMatch, 0, len(vc.records))
	for _, r := range vc.records {
		matches = append(matches, VectorMatch{ID: r.id, Score: cosineSimilarity(query, r.vec), Payload: r.payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
