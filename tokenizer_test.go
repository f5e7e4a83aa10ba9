package invdx

import (
	"slices"
	"testing"
)

func TestSplitWords(t *testing.T) {
	cases := []struct {
		Name     string
		Input    string
		Expected []string
	}{
		{"Blank", "", []string{}},
		{"One word", "hello", []string{"hello"}},
		{"Two words", "hello world", []string{"hello", "world"}},
		{"Apostrophe", "Mark's house", []string{"Mark", "s", "house"}},
		{"Punctuation madness", "Dave's sleep).Calamity: sister's", []string{"Dave", "s", "sleep", "Calamity", "sister", "s"}},
		{"Leading whitespace", " hello", []string{"hello"}},
		{"Leading punctuation", ",,,world", []string{"world"}},
		{"Trailing punctuation", "information!!!", []string{"information"}},
		{"Digits count as alphanumeric", "rfc2119 and rfc-8259", []string{"rfc2119", "and", "rfc", "8259"}},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			var words []string
			for s := range splitWords(tc.Input) {
				words = append(words, tc.Input[s.start:s.end])
			}

			if slices.Compare(words, tc.Expected) != 0 {
				t.Errorf("expected %v, got %v", tc.Expected, words)
			}
		})
	}
}

func TestTokenizeLowercasesAndAssignsOrdinalPositions(t *testing.T) {
	tokens := tokenize("The Quick Brown FOX jumps over the lazy dog")

	if len(tokens) != 9 {
		t.Fatalf("expected 9 tokens, got %d", len(tokens))
	}

	want := []string{"the", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog"}
	for i, tok := range tokens {
		if tok.word != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], tok.word)
		}
		if tok.pos != uint32(i) {
			t.Errorf("token %d: expected position %d, got %d", i, i, tok.pos)
		}
	}
}

func TestTokenizeEmptyText(t *testing.T) {
	if got := tokenize(""); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
}
