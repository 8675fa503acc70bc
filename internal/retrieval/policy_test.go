package retrieval

import "testing"

func TestShouldRetrieve_Greetings(t *testing.T) {
	greetingMsgs := []string{
		"hi", "hello", "hey", "thanks", "thank you", "ok", "okay",
		"yes", "no", "bye", "goodbye", "got it", "great", "sounds good",
	}

	for _, msg := range greetingMsgs {
		for _, variant := range []string{msg, msg + ".", msg + "!", "  " + msg + "  "} {
			for _, turns := range []int{0, 1, 10} {
				if ShouldRetrieve(variant, turns) {
					t.Errorf("ShouldRetrieve(%q, %d) = true, want false", variant, turns)
				}
			}
		}
	}
}

func TestShouldRetrieve_GreetingCaseInsensitive(t *testing.T) {
	for _, msg := range []string{"Hi", "THANKS", "Okay!", "Thank You."} {
		if ShouldRetrieve(msg, 0) {
			t.Errorf("ShouldRetrieve(%q, 0) = true, want false", msg)
		}
	}
}

func TestShouldRetrieve_ShortFollowUps(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		turns int
		want  bool
	}{
		{"what about mid-conversation", "what about auto?", 2, false},
		{"why mid-conversation", "why is that?", 1, false},
		{"how mid-conversation", "how so?", 3, false},
		{"can you mid-conversation", "can you clarify?", 1, false},
		{"follow-up on first turn retrieves", "what about auto?", 0, true},
		{"long follow-up still retrieves", "what about the general liability aggregate limit?", 2, true},
		{"non-prefix short message retrieves", "deductible?", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetrieve(tt.msg, tt.turns); got != tt.want {
				t.Errorf("ShouldRetrieve(%q, %d) = %v, want %v", tt.msg, tt.turns, got, tt.want)
			}
		})
	}
}

func TestShouldRetrieve_SubstantiveQuestions(t *testing.T) {
	msgs := []string{
		"What are the coverage limits on my property policy?",
		"Compare the deductibles across these three policies",
		"is flood damage covered under section 4 of this policy?",
	}

	for _, msg := range msgs {
		for _, turns := range []int{0, 5} {
			if !ShouldRetrieve(msg, turns) {
				t.Errorf("ShouldRetrieve(%q, %d) = false, want true", msg, turns)
			}
		}
	}
}

func TestShouldRetrieve_LongMessagesAlwaysRetrieve(t *testing.T) {
	// Anything at or past the short-follow-up cutoff retrieves, even with a
	// follow-up prefix and prior history.
	msg := "why does the umbrella policy exclude it"
	if len(msg) < shortFollowUpLen {
		t.Fatalf("test message too short: %d", len(msg))
	}
	if !ShouldRetrieve(msg, 4) {
		t.Errorf("ShouldRetrieve(%q, 4) = false, want true", msg)
	}
}
