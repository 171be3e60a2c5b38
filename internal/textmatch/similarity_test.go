package textmatch

import (
	"math"
	"testing"
)

func TestSimilarity_Reflexive(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"a", "hello world", "חוק הגיוס", "x y z 1 2 3"} {
		if got := Similarity(value, value); got != 1 {
			t.Fatalf("expected similarity(%q, %q) == 1, got %f", value, value, got)
		}
	}
}

func TestSimilarity_EmptyInputs(t *testing.T) {
	t.Parallel()

	if got := Similarity("", ""); got != 1 {
		t.Fatalf("expected two empty strings to score 1, got %f", got)
	}
	if got := Similarity("", "abc"); got != 0 {
		t.Fatalf("expected empty vs non-empty to score 0, got %f", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"kitten", "sitting"},
		{"אבגד", "אבגה"},
		{"recruitment law", "the recruitment law passed"},
		{"", "x"},
	}
	for _, pair := range pairs {
		if Similarity(pair[0], pair[1]) != Similarity(pair[1], pair[0]) {
			t.Fatalf("similarity not symmetric for %q / %q", pair[0], pair[1])
		}
	}
}

func TestSimilarity_HebrewCodePoints(t *testing.T) {
	t.Parallel()

	got := Similarity("אבגד", "אבגה")
	if got <= 0.7 || got >= 1 {
		t.Fatalf("expected one-letter hebrew change to score in (0.7, 1), got %f", got)
	}
	if math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("expected rune-based ratio 0.75, got %f", got)
	}
}

func TestSimilarity_KnownDistance(t *testing.T) {
	t.Parallel()

	want := 1 - 3.0/7.0
	if got := Similarity("kitten", "sitting"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("unexpected similarity: got %f want %f", got, want)
	}
}

func TestSimilarity_CaseSensitive(t *testing.T) {
	t.Parallel()

	if got := Similarity("ABC", "abc"); got != 0 {
		t.Fatalf("expected fully different case to score 0, got %f", got)
	}
}
