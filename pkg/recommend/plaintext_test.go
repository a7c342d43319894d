package recommend

import "testing"

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"Cosy  reads\nfor rainy days":                      "Cosy reads for rainy days",
		"<b>Swoon</b>-worthy picks":                        "Swoon-worthy picks",
		"Try these!<script>alert(1)</script>":              "Try these!",
		"<p>First</p><p>Second</p>":                        "First Second",
		"5 < 6 and fish & chips":                           "5 < 6 and fish & chips",
		`<img src=x onerror="steal()">A heist you'll love`: "A heist you'll love",
	}
	for in, want := range cases {
		if got := plainText(in); got != want {
			t.Fatalf("plainText(%q) = %q, want %q", in, got, want)
		}
	}
}
