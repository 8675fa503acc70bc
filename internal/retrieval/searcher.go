package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Result is one retrieved chunk with its similarity score and, when known,
// policy attribution for display. Produced fresh per query, never cached.
type Result struct {
	ChunkID      uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	ChunkIndex   int
	Text         string
	PageStart    *int
	PageEnd      *int
	SectionType  string
	Similarity   float64

	PolicyID     *uuid.UUID
	CarrierName  string
	PolicyNumber string
}

// PolicyRef resolves a policy to its source document plus the denormalized
// display fields used for balanced-mode attribution.
type PolicyRef struct {
	PolicyID     uuid.UUID
	DocumentID   uuid.UUID
	CarrierName  string
	PolicyNumber string
}

// ChunkQuery is a single ranked lookup against the chunk store. Chunks with a
// null embedding are excluded by the store.
type ChunkQuery struct {
	Vector        []float64
	TenantID      uuid.UUID
	DocumentIDs   []uuid.UUID
	TopK          int
	MinSimilarity float64
}

// ChunkStore is the read interface the searcher needs from the backing store.
type ChunkStore interface {
	SearchChunks(ctx context.Context, q ChunkQuery) ([]Result, error)
	PolicyDocuments(ctx context.Context, tenantID uuid.UUID, policyIDs []uuid.UUID) (map[uuid.UUID]PolicyRef, error)
}

// Query is a full search request as issued by the chat orchestrator.
type Query struct {
	Vector          []float64
	TenantID        uuid.UUID
	PolicyIDs       []uuid.UUID
	DocumentIDs     []uuid.UUID
	TopK            int
	MinSimilarity   float64
	Balanced        bool
	ChunksPerPolicy int
}

type Searcher struct {
	chunks ChunkStore
	logger *slog.Logger
}

func NewSearcher(chunks ChunkStore, logger *slog.Logger) *Searcher {
	return &Searcher{chunks: chunks, logger: logger}
}

// Search runs a similarity search. With Balanced set and more than one policy
// in scope, each policy gets an independent top-ChunksPerPolicy search against
// its own source document, so no single policy dominates a comparison.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Balanced && len(q.PolicyIDs) > 1 {
		return s.searchBalanced(ctx, q)
	}
	return s.searchStandard(ctx, q)
}

func (s *Searcher) searchStandard(ctx context.Context, q Query) ([]Result, error) {
	docIDs, empty, err := s.resolveDocumentScope(ctx, q)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	results, err := s.chunks.SearchChunks(ctx, ChunkQuery{
		Vector:        q.Vector,
		TenantID:      q.TenantID,
		DocumentIDs:   docIDs,
		TopK:          q.TopK,
		MinSimilarity: q.MinSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return results, nil
}

func (s *Searcher) searchBalanced(ctx context.Context, q Query) ([]Result, error) {
	refs, err := s.chunks.PolicyDocuments(ctx, q.TenantID, q.PolicyIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve policy documents: %w", err)
	}

	var all []Result
	for _, pid := range q.PolicyIDs {
		ref, ok := refs[pid]
		if !ok {
			// A policy without a resolvable source document contributes
			// nothing; it is not an error.
			s.logger.Warn("balanced search: policy has no source document", "policy_id", pid)
			continue
		}

		results, err := s.chunks.SearchChunks(ctx, ChunkQuery{
			Vector:        q.Vector,
			TenantID:      q.TenantID,
			DocumentIDs:   []uuid.UUID{ref.DocumentID},
			TopK:          q.ChunksPerPolicy,
			MinSimilarity: q.MinSimilarity,
		})
		if err != nil {
			return nil, fmt.Errorf("search chunks for policy %s: %w", pid, err)
		}

		for i := range results {
			if results[i].PolicyID == nil {
				id := ref.PolicyID
				results[i].PolicyID = &id
			}
			if results[i].CarrierName == "" {
				results[i].CarrierName = ref.CarrierName
			}
			if results[i].PolicyNumber == "" {
				results[i].PolicyNumber = ref.PolicyNumber
			}
		}
		all = append(all, results...)
	}
	return all, nil
}

// resolveDocumentScope combines the explicit document filter with the document
// set implied by the policy filter. When both are present the scopes intersect;
// an empty intersection means no chunk can qualify.
func (s *Searcher) resolveDocumentScope(ctx context.Context, q Query) (docIDs []uuid.UUID, empty bool, err error) {
	implied := []uuid.UUID{}
	if len(q.PolicyIDs) > 0 {
		refs, err := s.chunks.PolicyDocuments(ctx, q.TenantID, q.PolicyIDs)
		if err != nil {
			return nil, false, fmt.Errorf("resolve policy documents: %w", err)
		}
		for _, pid := range q.PolicyIDs {
			if ref, ok := refs[pid]; ok {
				implied = append(implied, ref.DocumentID)
			}
		}
		if len(implied) == 0 {
			return nil, true, nil
		}
	}

	switch {
	case len(q.DocumentIDs) > 0 && len(implied) > 0:
		keep := make(map[uuid.UUID]struct{}, len(implied))
		for _, id := range implied {
			keep[id] = struct{}{}
		}
		for _, id := range q.DocumentIDs {
			if _, ok := keep[id]; ok {
				docIDs = append(docIDs, id)
			}
		}
		if len(docIDs) == 0 {
			return nil, true, nil
		}
		return docIDs, false, nil
	case len(q.DocumentIDs) > 0:
		return q.DocumentIDs, false, nil
	case len(implied) > 0:
		return implied, false, nil
	default:
		return nil, false, nil
	}
}
