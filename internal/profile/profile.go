// Package profile defines named pipeline configurations.
package profile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/docuchat/rag-server/internal/pkg/errors"
)

// RetrieverType selects the retrieval modality mix.
type RetrieverType string

const (
	// RetrieverDense uses dense vector search only.
	RetrieverDense RetrieverType = "dense"

	// RetrieverHybrid fuses dense and sparse search.
	RetrieverHybrid RetrieverType = "hybrid"
)

// Profile is a named pipeline configuration.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// RetrieverType selects dense-only or hybrid retrieval.
	RetrieverType RetrieverType `json:"retriever_type"`

	// InitialRetrievalLimit is the candidate pool size before reranking.
	InitialRetrievalLimit int `json:"initial_retrieval_limit"`

	// UseReranker enables cross-encoder reranking.
	UseReranker bool `json:"use_reranker"`

	// RerankTopK is the number of candidates kept after reranking.
	RerankTopK int `json:"rerank_top_k"`

	// UseQueryRewrite enables multi-query expansion.
	UseQueryRewrite bool `json:"use_query_rewrite"`

	// NumRewriteQueries is the number of generated variants.
	NumRewriteQueries int `json:"num_rewrite_queries"`
}

// Builtin profiles, from cheapest to most thorough.
func builtins() []Profile {
	return []Profile{
		{
			ID:                    "baseline",
			Name:                  "Baseline",
			Description:           "Dense retrieval only, no rewriting or reranking",
			RetrieverType:         RetrieverDense,
			InitialRetrievalLimit: 10,
		},
		{
			ID:                    "hybrid_v1",
			Name:                  "Hybrid",
			Description:           "Hybrid dense+sparse retrieval with RRF fusion",
			RetrieverType:         RetrieverHybrid,
			InitialRetrievalLimit: 10,
		},
		{
			ID:                    "hybrid_rewrite",
			Name:                  "Hybrid + Rewrite",
			Description:           "Hybrid retrieval with multi-query expansion",
			RetrieverType:         RetrieverHybrid,
			InitialRetrievalLimit: 10,
			UseQueryRewrite:       true,
			NumRewriteQueries:     5,
		},
		{
			ID:                    "hybrid_rerank",
			Name:                  "Hybrid + Rewrite + Rerank",
			Description:           "Full pipeline: hybrid retrieval, rewriting and cross-encoder reranking",
			RetrieverType:         RetrieverHybrid,
			InitialRetrievalLimit: 30,
			UseReranker:           true,
			RerankTopK:            10,
			UseQueryRewrite:       true,
			NumRewriteQueries:     5,
		},
		{
			ID:                    "fast",
			Name:                  "Fast",
			Description:           "Low-latency dense retrieval with a small candidate pool",
			RetrieverType:         RetrieverDense,
			InitialRetrievalLimit: 5,
		},
	}
}

// DefaultProfileID is used when a request does not name a profile.
const DefaultProfileID = "hybrid_rerank"

// Registry holds the available profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry seeded with the builtin profiles.
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
	}
	for _, p := range builtins() {
		r.profiles[p.ID] = p
	}
	return r
}

// Get returns the profile with the given ID.
func (r *Registry) Get(id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, errors.NotFoundError(fmt.Sprintf("profile %q", id))
	}
	return p, nil
}

// List returns all profiles sorted by ID.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Register adds or replaces a profile. Used for experiment variants.
func (r *Registry) Register(p Profile) error {
	if p.ID == "" {
		return errors.New(errors.CodeValidation, "profile ID must not be empty")
	}
	if p.RetrieverType != RetrieverDense && p.RetrieverType != RetrieverHybrid {
		return errors.New(errors.CodeValidation,
			fmt.Sprintf("invalid retriever type %q", p.RetrieverType))
	}
	if p.InitialRetrievalLimit <= 0 {
		return errors.New(errors.CodeValidation, "initial retrieval limit must be positive")
	}
	if p.UseReranker && p.RerankTopK <= 0 {
		return errors.New(errors.CodeValidation, "rerank top k must be positive when reranking")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

// Count returns the number of registered profiles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
