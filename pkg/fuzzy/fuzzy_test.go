package fuzzy

import (
	"math"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"12 inch RCP Storm Pipe", "12inchrcpstormpipe"},
		{"12-inch RCP Storm Pipe", "12inchrcpstormpipe"},
		{"  Topsoil Removal (CY) ", "topsoilremovalcy"},
		{"6\" Water Main @ 2%", "6watermain2"},
		{"Béton coulé", "btoncoul"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) want=%q got=%q", tc.in, tc.want, got)
		}
	}
}

func TestSimilarity_Properties(t *testing.T) {
	t.Parallel()

	if got := Similarity("", ""); got != 0 {
		t.Fatalf("empty strings want=0 got=%v", got)
	}
	if got := Similarity("topsoil", "topsoil"); got != 1 {
		t.Fatalf("reflexive want=1 got=%v", got)
	}
	if got := Similarity("abc", ""); got != 0 {
		t.Fatalf("one empty want=0 got=%v", got)
	}

	pairs := [][2]string{
		{"12inchrcpstormpipe", "15inchrcpstormpipe"},
		{"asphaltpavement", "asphaltpavingbase"},
		{"abcd", "bcda"},
	}
	for _, p := range pairs {
		ab, ba := Similarity(p[0], p[1]), Similarity(p[1], p[0])
		if ab != ba {
			t.Fatalf("asymmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("out of range for %q/%q: %v", p[0], p[1], ab)
		}
	}
}

func TestSimilarity_KnownRatios(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want float64
	}{
		// "abcd" matched in full.
		{"abcd", "abcd", 1},
		// Longest block "abc", nothing left on either side.
		{"abcx", "abcy", 0.75},
		// Longest block "bcd" then "a" cannot be matched to the right side.
		{"abcd", "bcda", 0.75},
		// Blocks "ab" and "d" on either side of the mismatch.
		{"abxd", "abyd", 0.75},
		{"abcdefghij", "abcdefgxyz", 0.70},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("Similarity(%q,%q) want=%v got=%v", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestBest_ThresholdIsStrict(t *testing.T) {
	t.Parallel()

	idx, _ := Best("abcdefghij", []string{"abcdefgxyz"}, DefaultThreshold)
	if idx != -1 {
		t.Fatalf("similarity exactly 0.70 must not qualify, got index %d", idx)
	}

	a, b := seventyOnePercentPair()
	idx, score := Best(a, []string{b}, DefaultThreshold)
	if idx != 0 {
		t.Fatalf("similarity 0.71 must qualify, got index %d score %v", idx, score)
	}
	if math.Abs(score-0.71) > 1e-12 {
		t.Fatalf("score want=0.71 got=%v", score)
	}
}

func TestBest_HighestWinsAndFirstWinsTies(t *testing.T) {
	t.Parallel()

	idx, _ := Best("abcdefghij", []string{"abcdefghiz", "abcdefghij0", "abcdefghiz"}, 0.5)
	if idx != 1 {
		t.Fatalf("want best index 1 got %d", idx)
	}

	idx, _ = Best("abcdefghij", []string{"abcdefghiz", "abcdefghiy"}, 0.5)
	if idx != 0 {
		t.Fatalf("exact tie should keep first candidate, got %d", idx)
	}

	if idx, _ := Best("", []string{""}, 0); idx != -1 {
		t.Fatalf("empty key must never fuzzy match, got %d", idx)
	}
}

func TestAnyAbove(t *testing.T) {
	t.Parallel()

	if !AnyAbove("12inchrcpstormpipe", []string{"mobilization", "12inchrcpstormpip"}, DefaultThreshold) {
		t.Fatalf("expected a candidate above threshold")
	}
	if AnyAbove("mobilization", []string{"topsoilremoval"}, DefaultThreshold) {
		t.Fatalf("unexpected candidate above threshold")
	}
}

// seventyOnePercentPair builds two 100-character keys sharing a 71-character
// prefix and nothing else.
func seventyOnePercentPair() (string, string) {
	const alphabet = "abcdefghijklmnopqrstuvw0123456789"
	var prefix strings.Builder
	for i := 0; i < 71; i++ {
		prefix.WriteByte(alphabet[i%len(alphabet)])
	}
	p := prefix.String()
	return p + strings.Repeat("x", 29), p + strings.Repeat("y", 29)
}
