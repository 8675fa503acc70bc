package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/policy"
)

// PolicyContexts loads the structured snapshot of each policy (fields plus
// coverage rows) for prompt inclusion. Missing ids are simply absent from the
// result; they are not an error.
func (s *Store) PolicyContexts(ctx context.Context, tenantID uuid.UUID, policyIDs []uuid.UUID) ([]policy.Context, error) {
	if len(policyIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, coalesce(document_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       coalesce(carrier_name, ''), coalesce(policy_number, ''), coalesce(insured_name, ''),
		       effective_date, expiration_date, total_premium, confidence
		FROM policies
		WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, policyIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select policies: %w", err)
	}

	byID := make(map[uuid.UUID]*policy.Context, len(policyIDs))
	for rows.Next() {
		var p policy.Context
		if err := rows.Scan(
			&p.ID, &p.DocumentID,
			&p.CarrierName, &p.PolicyNumber, &p.InsuredName,
			&p.EffectiveDate, &p.ExpirationDate, &p.TotalPremium, &p.Confidence,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		byID[p.ID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byID) == 0 {
		return nil, nil
	}

	covRows, err := s.pool.Query(ctx, `
		SELECT policy_id, coverage_type, coalesce(subtype, ''),
		       occurrence_limit, aggregate_limit, deductible, premium, coalesce(detail, '')
		FROM coverages
		WHERE policy_id = ANY($1)
		ORDER BY policy_id, position`,
		policyIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select coverages: %w", err)
	}
	defer covRows.Close()

	for covRows.Next() {
		var pid uuid.UUID
		var covType string
		var c policy.Coverage
		if err := covRows.Scan(&pid, &covType, &c.Subtype, &c.OccurrenceLimit, &c.AggregateLimit, &c.Deductible, &c.Premium, &c.Detail); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		c.Type = policy.ParseCoverageType(covType)
		if p, ok := byID[pid]; ok {
			p.Coverages = append(p.Coverages, c)
		}
	}
	if err := covRows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's id order for deterministic prompt assembly.
	out := make([]policy.Context, 0, len(byID))
	for _, id := range policyIDs {
		if p, ok := byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}
