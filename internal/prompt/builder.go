// Package prompt assembles the generation prompt from retrieved chunks,
// structured policy snapshots, and the user's message.
package prompt

import (
	"fmt"
	"strings"

	"github.com/brokerage-labs/atticus/internal/policy"
	"github.com/brokerage-labs/atticus/internal/retrieval"
)

// Disclaimer is substituted for the structured context block when retrieval
// was skipped or degraded and there is nothing else to show.
const Disclaimer = "Document search unavailable or not needed for this question — answering from general knowledge and any structured policy data shown."

// Input is one prompt-assembly request. Assembly is deterministic: identical
// inputs produce byte-identical output.
type Input struct {
	Chunks      []retrieval.Result
	Policies    []policy.Context
	UserMessage string
	Balanced    bool
	Degraded    bool
}

// Build renders the prompt. With no chunks and no policies the user message
// passes through unchanged (prefixed by the disclaimer when degraded). Every
// provided chunk is included; bounding happens upstream.
func Build(in Input) string {
	if len(in.Chunks) == 0 && len(in.Policies) == 0 {
		if in.Degraded {
			return Disclaimer + "\n\n" + in.UserMessage
		}
		return in.UserMessage
	}

	var sb strings.Builder
	sb.WriteString("You have access to the following insurance policy information.\n")

	for _, p := range in.Policies {
		writePolicy(&sb, p)
	}

	if len(in.Chunks) > 0 {
		if in.Balanced {
			writeGroupedChunks(&sb, in.Chunks)
		} else {
			sb.WriteString("\n=== Relevant Document Excerpts ===\n")
			for _, c := range in.Chunks {
				writeChunk(&sb, c)
			}
		}
	} else if in.Degraded {
		sb.WriteString("\n")
		sb.WriteString(Disclaimer)
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(in.UserMessage)
	return sb.String()
}

func writePolicy(sb *strings.Builder, p policy.Context) {
	sb.WriteString("\n=== Policy: ")
	sb.WriteString(policyLabel(p.CarrierName, p.PolicyNumber))
	sb.WriteString(" ===\n")
	if p.InsuredName != "" {
		fmt.Fprintf(sb, "Insured: %s\n", p.InsuredName)
	}
	if p.EffectiveDate != nil && p.ExpirationDate != nil {
		fmt.Fprintf(sb, "Term: %s to %s\n", p.EffectiveDate.Format("2006-01-02"), p.ExpirationDate.Format("2006-01-02"))
	}
	if p.TotalPremium != nil {
		fmt.Fprintf(sb, "Total Premium: $%.2f\n", *p.TotalPremium)
	}
	if p.Confidence != nil {
		fmt.Fprintf(sb, "Extraction Confidence: %.2f\n", *p.Confidence)
	}
	for _, c := range p.Coverages {
		sb.WriteString("- ")
		sb.WriteString(c.Type.Label())
		if c.Subtype != "" {
			fmt.Fprintf(sb, " (%s)", c.Subtype)
		}
		var parts []string
		if c.OccurrenceLimit != nil {
			parts = append(parts, fmt.Sprintf("occurrence limit $%.0f", *c.OccurrenceLimit))
		}
		if c.AggregateLimit != nil {
			parts = append(parts, fmt.Sprintf("aggregate limit $%.0f", *c.AggregateLimit))
		}
		if c.Deductible != nil {
			parts = append(parts, fmt.Sprintf("deductible $%.0f", *c.Deductible))
		}
		if c.Premium != nil {
			parts = append(parts, fmt.Sprintf("premium $%.2f", *c.Premium))
		}
		if len(parts) > 0 {
			sb.WriteString(": ")
			sb.WriteString(strings.Join(parts, ", "))
		}
		if c.Detail != "" {
			fmt.Fprintf(sb, " — %s", c.Detail)
		}
		sb.WriteString("\n")
	}
}

// writeGroupedChunks renders chunks grouped by policy attribution in
// first-seen order, for multi-policy comparisons.
func writeGroupedChunks(sb *strings.Builder, chunks []retrieval.Result) {
	var order []string
	groups := make(map[string][]retrieval.Result)
	for _, c := range chunks {
		key := policyLabel(c.CarrierName, c.PolicyNumber)
		if key == "" {
			key = c.DocumentName
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	for _, key := range order {
		fmt.Fprintf(sb, "\n=== Excerpts — %s ===\n", key)
		for _, c := range groups[key] {
			writeChunk(sb, c)
		}
	}
}

func writeChunk(sb *strings.Builder, c retrieval.Result) {
	sb.WriteString("[Source: ")
	sb.WriteString(c.DocumentName)
	if c.PageStart != nil {
		if c.PageEnd != nil && *c.PageEnd != *c.PageStart {
			fmt.Fprintf(sb, ", Page %d-%d", *c.PageStart, *c.PageEnd)
		} else {
			fmt.Fprintf(sb, ", Page %d", *c.PageStart)
		}
	}
	sb.WriteString("]\n")
	sb.WriteString(c.Text)
	sb.WriteString("\n\n")
}

func policyLabel(carrier, number string) string {
	switch {
	case carrier != "" && number != "":
		return carrier + " " + number
	case carrier != "":
		return carrier
	default:
		return number
	}
}
