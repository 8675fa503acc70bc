package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/policy"
	"github.com/brokerage-labs/atticus/internal/retrieval"
)

func intPtr(n int) *int          { return &n }
func f64Ptr(f float64) *float64  { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func sampleChunk(doc, carrier, number, text string, pageStart, pageEnd int) retrieval.Result {
	pid := uuid.New()
	return retrieval.Result{
		ChunkID:      uuid.New(),
		DocumentID:   uuid.New(),
		DocumentName: doc,
		Text:         text,
		PageStart:    intPtr(pageStart),
		PageEnd:      intPtr(pageEnd),
		Similarity:   0.8,
		PolicyID:     &pid,
		CarrierName:  carrier,
		PolicyNumber: number,
	}
}

func samplePolicy() policy.Context {
	return policy.Context{
		ID:             uuid.New(),
		CarrierName:    "Acme Mutual",
		PolicyNumber:   "GL-100",
		InsuredName:    "Riverside Bakery LLC",
		EffectiveDate:  timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		ExpirationDate: timePtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		TotalPremium:   f64Ptr(12500),
		Confidence:     f64Ptr(0.92),
		Coverages: []policy.Coverage{
			{
				Type:            policy.CoverageGeneralLiability,
				OccurrenceLimit: f64Ptr(1000000),
				AggregateLimit:  f64Ptr(2000000),
				Deductible:      f64Ptr(5000),
			},
		},
	}
}

func TestBuild_EmptyInputsPassThrough(t *testing.T) {
	got := Build(Input{UserMessage: "thanks"})
	if got != "thanks" {
		t.Errorf("expected raw pass-through, got %q", got)
	}
}

func TestBuild_DegradedWithNothingElse(t *testing.T) {
	got := Build(Input{UserMessage: "what are my limits?", Degraded: true})
	if !strings.HasPrefix(got, Disclaimer) {
		t.Errorf("expected disclaimer prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "what are my limits?") {
		t.Errorf("expected raw message after disclaimer, got %q", got)
	}
}

func TestBuild_PolicyFieldsRendered(t *testing.T) {
	got := Build(Input{
		Policies:    []policy.Context{samplePolicy()},
		UserMessage: "what are the coverage limits?",
	})

	for _, want := range []string{
		"=== Policy: Acme Mutual GL-100 ===",
		"Insured: Riverside Bakery LLC",
		"Term: 2024-01-01 to 2025-01-01",
		"Total Premium: $12500.00",
		"Extraction Confidence: 0.92",
		"General Liability",
		"occurrence limit $1000000",
		"aggregate limit $2000000",
		"deductible $5000",
		"Question: what are the coverage limits?",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuild_AllChunksIncluded(t *testing.T) {
	chunks := []retrieval.Result{
		sampleChunk("acme-policy.pdf", "Acme Mutual", "GL-100", "alpha clause", 1, 1),
		sampleChunk("acme-policy.pdf", "Acme Mutual", "GL-100", "beta clause", 4, 5),
		sampleChunk("acme-policy.pdf", "Acme Mutual", "GL-100", "gamma clause", 9, 9),
	}
	got := Build(Input{Chunks: chunks, UserMessage: "q"})

	for _, text := range []string{"alpha clause", "beta clause", "gamma clause"} {
		if !strings.Contains(got, text) {
			t.Errorf("prompt dropped chunk %q", text)
		}
	}
	if !strings.Contains(got, "[Source: acme-policy.pdf, Page 4-5]") {
		t.Errorf("expected page-range source label, got:\n%s", got)
	}
	if !strings.Contains(got, "[Source: acme-policy.pdf, Page 1]") {
		t.Errorf("expected single-page source label, got:\n%s", got)
	}
}

func TestBuild_BalancedGroupsByPolicy(t *testing.T) {
	chunks := []retrieval.Result{
		sampleChunk("acme.pdf", "Acme Mutual", "GL-100", "acme one", 1, 1),
		sampleChunk("beacon.pdf", "Beacon Casualty", "PR-200", "beacon one", 2, 2),
		sampleChunk("acme.pdf", "Acme Mutual", "GL-100", "acme two", 3, 3),
	}
	got := Build(Input{Chunks: chunks, UserMessage: "compare", Balanced: true})

	acme := strings.Index(got, "=== Excerpts — Acme Mutual GL-100 ===")
	beacon := strings.Index(got, "=== Excerpts — Beacon Casualty PR-200 ===")
	if acme == -1 || beacon == -1 {
		t.Fatalf("expected grouped headers:\n%s", got)
	}
	if acme > beacon {
		t.Error("groups should preserve first-seen order")
	}
	// Both acme chunks land in the acme group ahead of the beacon header.
	if i := strings.Index(got, "acme two"); i > beacon {
		t.Error("chunks of the same policy should be grouped together")
	}
}

func TestBuild_DegradedDisclaimerWithPolicies(t *testing.T) {
	got := Build(Input{
		Policies:    []policy.Context{samplePolicy()},
		UserMessage: "what are my limits?",
		Degraded:    true,
	})
	if !strings.Contains(got, Disclaimer) {
		t.Errorf("expected disclaimer when search degraded, got:\n%s", got)
	}
	if !strings.Contains(got, "=== Policy: Acme Mutual GL-100 ===") {
		t.Errorf("structured policy data should still render when degraded")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	in := Input{
		Chunks: []retrieval.Result{
			sampleChunk("acme.pdf", "Acme Mutual", "GL-100", "clause", 1, 2),
		},
		Policies:    []policy.Context{samplePolicy()},
		UserMessage: "q",
		Balanced:    true,
	}
	if Build(in) != Build(in) {
		t.Error("identical inputs must yield byte-identical output")
	}
}
