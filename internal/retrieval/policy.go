package retrieval

import "strings"

// greetings are messages that never warrant a document search, matched exactly
// after normalization (optionally with a trailing "." or "!").
var greetings = map[string]struct{}{
	"hi":          {},
	"hello":       {},
	"hey":         {},
	"thanks":      {},
	"thank you":   {},
	"ok":          {},
	"okay":        {},
	"yes":         {},
	"no":          {},
	"bye":         {},
	"goodbye":     {},
	"got it":      {},
	"great":       {},
	"sounds good": {},
}

// followUpPrefixes mark short conversational follow-ups that lean on prior
// context rather than needing fresh retrieval.
var followUpPrefixes = []string{
	"what about",
	"why",
	"how",
	"can you",
	"and ",
	"also",
	"what if",
}

const shortFollowUpLen = 25

// ShouldRetrieve decides whether a user message warrants a vector search.
// Pure and stateless: greetings and acknowledgments never trigger retrieval,
// and short follow-ups mid-conversation are answered from existing context.
func ShouldRetrieve(message string, priorTurnCount int) bool {
	norm := strings.ToLower(strings.TrimSpace(message))
	norm = strings.TrimRight(norm, ".!")
	norm = strings.TrimSpace(norm)

	if _, ok := greetings[norm]; ok {
		return false
	}

	if priorTurnCount > 0 && len(norm) < shortFollowUpLen {
		for _, prefix := range followUpPrefixes {
			if strings.HasPrefix(norm, prefix) {
				return false
			}
		}
	}

	return true
}
