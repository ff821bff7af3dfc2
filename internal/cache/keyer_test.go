package cache

import (
	"testing"

	"github.com/l0p7/searchedge/internal/config"
)

func testKeyer() *Keyer {
	return NewKeyer("search", config.DefaultLexicon().StopWords)
}

func TestNormalizeEquivalence(t *testing.T) {
	keyer := testKeyer()
	cases := []struct {
		name string
		a, b string
	}{
		{"case and whitespace", "  Golang   Tutorial ", "golang tutorial"},
		{"word order", "tutorial golang", "golang tutorial"},
		{"stop words", "golang and the tutorial", "tutorial golang"},
		{"mixed", "The  Tutorial OF golang", "golang tutorial"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := keyer.Normalize(tc.a), keyer.Normalize(tc.b); got != want {
				t.Fatalf("normalize(%q)=%q, normalize(%q)=%q, expected equal", tc.a, got, tc.b, want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	keyer := testKeyer()
	for _, query := range []string{
		"How to learn JavaScript",
		"  The   LATEST golang news  ",
		"",
		"   ",
		"the and or",
	} {
		once := keyer.Normalize(query)
		twice := keyer.Normalize(once)
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: %q != %q", query, once, twice)
		}
	}
}

func TestNormalizeKeepsInterrogatives(t *testing.T) {
	keyer := testKeyer()
	// "how" and "why" change the meaning of a query; the default stop-word
	// list must not erase them.
	if got := keyer.Normalize("how does gc work"); got != "does gc how work" {
		t.Fatalf("unexpected normalization %q", got)
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := map[string]any{"limit": 10, "sort": "new"}
	b := map[string]any{"sort": "new", "limit": 10}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("fingerprints differ for identical option sets")
	}
}

func TestFingerprintEmpty(t *testing.T) {
	if got := Fingerprint(nil); got != "" {
		t.Fatalf("expected empty fingerprint for nil options, got %q", got)
	}
	if got := Fingerprint(map[string]any{}); got != "" {
		t.Fatalf("expected empty fingerprint for empty options, got %q", got)
	}
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	a := Fingerprint(map[string]any{"limit": 10})
	b := Fingerprint(map[string]any{"limit": 20})
	if a == b {
		t.Fatalf("expected different fingerprints for different limits")
	}
}

func TestFingerprintJSONNumbers(t *testing.T) {
	// Options decoded from JSON arrive as float64; an integral float must
	// fingerprint the same as the int it represents.
	a := Fingerprint(map[string]any{"limit": 10})
	b := Fingerprint(map[string]any{"limit": float64(10)})
	if a != b {
		t.Fatalf("int and integral float64 fingerprints differ: %q vs %q", a, b)
	}
}

func TestKeyShape(t *testing.T) {
	keyer := testKeyer()
	key := keyer.Key("Go  Tutorial", map[string]any{"limit": 10})
	want := "search:go tutorial:" + Fingerprint(map[string]any{"limit": 10})
	if key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}

	bare := keyer.Key("go tutorial", nil)
	if bare != "search:go tutorial:" {
		t.Fatalf("unexpected key without options %q", bare)
	}
}
