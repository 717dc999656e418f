package units

import "testing"

func TestKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"lf":  "LF",
		"Ton": "TON",
		"":    "",
		"l.f": "L.F",
	}
	for in, want := range cases {
		if got := Key(in); got != want {
			t.Errorf("Key(%q) want=%q got=%q", in, want, got)
		}
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := Name("cy"); got != "cubic yards" {
		t.Fatalf("Name(cy)=%q", got)
	}
	if got := Name("MBF"); got != "MBF" {
		t.Fatalf("unknown unit should pass through, got %q", got)
	}
	if !Known("ls") || Known("MBF") {
		t.Fatalf("Known mismatch")
	}
}
