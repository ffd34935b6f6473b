package question

import "testing"

// ---------------------------------------------------------------------------
// Answer resolution
// ---------------------------------------------------------------------------

func TestResolveAnswer(t *testing.T) {
	options := []string{"London", "Paris", "Berlin"}

	tests := []struct {
		name     string
		residual string
		wantIdx  int
		wantNot  Notation
	}{
		{"plain letter", "Answer: B.", 2, NotationLetter},
		{"bold letter", "**Answer: C.**", 3, NotationLetter},
		{"bold label", "**Answer:** A", 1, NotationLetter},
		{"underscore", "__Answer: B.__", 2, NotationLetter},
		{"underscore label", "__Answer:__ C", 3, NotationLetter},
		{"underscore mid line", "Key: __Answer: A.__", 1, NotationLetter},
		{"inside a word", "Transanswer: B.", 0, NotationNone},
		{"answer is", "The answer is (C)", 3, NotationLetter},
		{"option word", "Answer: option A.", 1, NotationLetter},
		{"equals", "Answer : B = Paris", 2, NotationEquals},
		{"exact text", "Answer: Paris", 2, NotationText},
		{"text case", "Answer: berlin", 3, NotationText},
		{"partial", "Answer: The capital is Paris", 2, NotationPartial},
		{"letter beats text", "Answer: B. Berlin", 2, NotationLetter},
		{"none", "No marker here.", 0, NotationNone},
		{"out of range", "Answer: E.", 5, NotationLetter},
		{
			"declared answer beats solution",
			"Answer: A.\n**Solution:** Option C is a common mistake, Answer: C.",
			1, NotationLetter,
		},
		{
			"answer only in solution",
			"**Solution:** The answer is B.",
			2, NotationLetter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveAnswer(tt.residual, options)
			if got.Index != tt.wantIdx || got.Notation != tt.wantNot {
				t.Errorf("resolveAnswer(%q) = {%d %v}, want {%d %v}",
					tt.residual, got.Index, got.Notation, tt.wantIdx, tt.wantNot)
			}
		})
	}
}

func TestResolvePartialRequiresUniqueMatch(t *testing.T) {
	options := []string{"red apple", "green apple"}
	if got := resolveAnswer("Answer: apple", options); got.Notation != NotationNone {
		t.Errorf("ambiguous partial resolved to %d via %v", got.Index, got.Notation)
	}
}

func TestResolutionInRange(t *testing.T) {
	tests := []struct {
		idx, n int
		want   bool
	}{
		{1, 2, true},
		{2, 2, true},
		{3, 2, false},
		{0, 4, false},
	}
	for _, tt := range tests {
		if got := (Resolution{Index: tt.idx}).InRange(tt.n); got != tt.want {
			t.Errorf("InRange(%d of %d) = %v, want %v", tt.idx, tt.n, got, tt.want)
		}
	}
}

func TestNotationString(t *testing.T) {
	want := map[Notation]string{
		NotationNone:    "none",
		NotationLetter:  "letter",
		NotationEquals:  "equals",
		NotationText:    "text",
		NotationPartial: "partial",
	}
	for n, s := range want {
		if n.String() != s {
			t.Errorf("Notation(%d).String() = %q, want %q", int(n), n.String(), s)
		}
	}
}
