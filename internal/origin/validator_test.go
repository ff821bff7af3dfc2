package origin

import "testing"

func TestValidatorAllowed(t *testing.T) {
	validator, err := NewValidator([]string{
		"https://app.example.com",
		"*.example.com",
		"http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	cases := []struct {
		name   string
		origin string
		want   bool
	}{
		{"absent origin", "", false},
		{"exact match", "https://app.example.com", true},
		{"exact localhost", "http://localhost:3000", true},
		{"wildcard subdomain", "https://a.example.com", true},
		{"wildcard deep subdomain", "https://a.b.example.com", true},
		{"unrelated origin", "https://evil.com", false},
		{"suffix trick", "https://evil.com?x=.example.com2", false},
		{"lookalike domain", "https://example.com.evil.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validator.Allowed(tc.origin); got != tc.want {
				t.Fatalf("Allowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func TestValidatorEmptyAllowList(t *testing.T) {
	validator, err := NewValidator(nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if validator.Allowed("https://app.example.com") {
		t.Fatalf("empty allow-list must reject every origin")
	}
}

func TestValidatorNoPartialMatch(t *testing.T) {
	validator, err := NewValidator([]string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if validator.Allowed("https://app.example.com.evil.io") {
		t.Fatalf("exact entries must match the full origin string")
	}
}
