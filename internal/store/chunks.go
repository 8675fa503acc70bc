package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/retrieval"
)

// SearchChunks ranks a tenant's chunks by cosine similarity against the query
// vector. Chunks without an embedding never qualify. Similarity is
// 1 - cosine distance; rows below MinSimilarity are filtered in SQL, and
// equal scores keep the store's natural order via the id tie-break.
func (s *Store) SearchChunks(ctx context.Context, q retrieval.ChunkQuery) ([]retrieval.Result, error) {
	query := `
		SELECT c.id, c.document_id, d.filename, c.chunk_index, c.text,
		       c.page_start, c.page_end, coalesce(c.section_type, ''),
		       c.policy_id, coalesce(c.carrier_name, ''), coalesce(c.policy_number, ''),
		       1 - (c.embedding <=> $1::vector) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.tenant_id = $2
		  AND c.embedding IS NOT NULL
		  AND 1 - (c.embedding <=> $1::vector) >= $3`
	args := []any{pgVector(q.Vector), q.TenantID, q.MinSimilarity}

	if len(q.DocumentIDs) > 0 {
		query += fmt.Sprintf(" AND c.document_id = ANY($%d)", len(args)+1)
		args = append(args, q.DocumentIDs)
	}

	query += fmt.Sprintf(" ORDER BY c.embedding <=> $1::vector, c.id LIMIT $%d", len(args)+1)
	args = append(args, q.TopK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []retrieval.Result
	for rows.Next() {
		var r retrieval.Result
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.DocumentName, &r.ChunkIndex, &r.Text,
			&r.PageStart, &r.PageEnd, &r.SectionType,
			&r.PolicyID, &r.CarrierName, &r.PolicyNumber,
			&r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PolicyDocuments resolves each policy to its source document plus display
// fields. Policies with no source document are absent from the result.
func (s *Store) PolicyDocuments(ctx context.Context, tenantID uuid.UUID, policyIDs []uuid.UUID) (map[uuid.UUID]retrieval.PolicyRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, coalesce(carrier_name, ''), coalesce(policy_number, '')
		FROM policies
		WHERE tenant_id = $1 AND id = ANY($2) AND document_id IS NOT NULL`,
		tenantID, policyIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select policy documents: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]retrieval.PolicyRef, len(policyIDs))
	for rows.Next() {
		var ref retrieval.PolicyRef
		if err := rows.Scan(&ref.PolicyID, &ref.DocumentID, &ref.CarrierName, &ref.PolicyNumber); err != nil {
			return nil, fmt.Errorf("scan policy document: %w", err)
		}
		out[ref.PolicyID] = ref
	}
	return out, rows.Err()
}
