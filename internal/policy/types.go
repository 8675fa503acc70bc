// Package policy holds the read-only projection of a policy's structured
// fields that the chat core includes in prompts. Extraction of these fields
// happens upstream; this core only consumes them.
package policy

import (
	"time"

	"github.com/google/uuid"
)

// CoverageType is the closed set of coverage categories the prompt layer
// knows how to label. Unknown rows from the store map to CoverageOther.
type CoverageType string

const (
	CoverageGeneralLiability CoverageType = "general_liability"
	CoverageProperty         CoverageType = "property"
	CoverageAuto             CoverageType = "auto"
	CoverageUmbrella         CoverageType = "umbrella"
	CoverageWorkersComp      CoverageType = "workers_comp"
	CoverageOther            CoverageType = "other"
)

// ParseCoverageType maps a stored coverage type string onto the closed enum.
func ParseCoverageType(s string) CoverageType {
	switch CoverageType(s) {
	case CoverageGeneralLiability, CoverageProperty, CoverageAuto, CoverageUmbrella, CoverageWorkersComp:
		return CoverageType(s)
	default:
		return CoverageOther
	}
}

// Label returns the human-readable name used in assembled prompts.
// The switch is exhaustive over the enum; there is no default string lookup.
func (t CoverageType) Label() string {
	switch t {
	case CoverageGeneralLiability:
		return "General Liability"
	case CoverageProperty:
		return "Property"
	case CoverageAuto:
		return "Auto"
	case CoverageUmbrella:
		return "Umbrella"
	case CoverageWorkersComp:
		return "Workers Compensation"
	case CoverageOther:
		return "Other"
	}
	return "Other"
}

// Coverage is one coverage row of a policy.
type Coverage struct {
	Type            CoverageType
	Subtype         string
	OccurrenceLimit *float64
	AggregateLimit  *float64
	Deductible      *float64
	Premium         *float64
	Detail          string
}

// Context is the structured snapshot of a single policy fetched per turn for
// prompt inclusion. It is never persisted as part of chat state.
type Context struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	CarrierName   string
	PolicyNumber  string
	InsuredName   string
	EffectiveDate *time.Time
	ExpirationDate *time.Time
	TotalPremium  *float64
	Confidence    *float64
	Coverages     []Coverage
}
