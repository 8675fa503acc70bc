package chat

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/retrieval"
)

// citationRe matches bracketed page references the model was instructed to
// emit, e.g. "[Source: Page 4]", "[Source: acme.pdf, Page 4-5]",
// "[Document 2, Page 12]".
var citationRe = regexp.MustCompile(`(?i)\[[^\]]*(?:source|document)[^\]]*?page\s+(\d+)(?:\s*-\s*(\d+))?[^\]]*\]`)

const implicitCitationCount = 3

// extractCitations reconciles the generated text against the retrieved
// evidence. Explicit page markers are matched to chunks whose page range
// overlaps; matched ids are deduplicated in first-seen order. When the model
// emitted no markers at all but chunks were retrieved, the top-ranked chunks
// are cited implicitly so the caller always has an evidence trail.
func extractCitations(text string, chunks []retrieval.Result) []uuid.UUID {
	matches := citationRe.FindAllStringSubmatch(text, -1)

	var cited []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, m := range matches {
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		end := start
		if m[2] != "" {
			if e, err := strconv.Atoi(m[2]); err == nil {
				end = e
			}
		}

		for _, c := range chunks {
			if !pagesOverlap(c, start, end) {
				continue
			}
			if _, dup := seen[c.ChunkID]; dup {
				continue
			}
			seen[c.ChunkID] = struct{}{}
			cited = append(cited, c.ChunkID)
		}
	}

	if len(matches) == 0 && len(chunks) > 0 {
		n := min(implicitCitationCount, len(chunks))
		for _, c := range chunks[:n] {
			cited = append(cited, c.ChunkID)
		}
	}

	return cited
}

func pagesOverlap(c retrieval.Result, start, end int) bool {
	if c.PageStart == nil {
		return false
	}
	cs := *c.PageStart
	ce := cs
	if c.PageEnd != nil {
		ce = *c.PageEnd
	}
	return cs <= end && ce >= start
}
