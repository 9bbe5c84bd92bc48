package memoparse

import "testing"

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		name   string
		memo   string
		wantID string
		wantOK bool
	}{
		{"simple bracket", "[O1]", "O1", true},
		{"embedded in sentence", "payment for order [abc123]", "abc123", true},
		{"alnum mix", "[O_1a]", "O_1a", true},
		{"no brackets", "just a memo", "", false},
		{"empty memo", "", "", false},
		{"unterminated bracket", "[O1", "", false},
		{"first match wins with multiple brackets", "[O1] then [O2]", "O1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotOK := ExtractOrderID(tt.memo)
			if gotOK != tt.wantOK || gotID != tt.wantID {
				t.Fatalf("ExtractOrderID(%q) = (%q, %v), want (%q, %v)", tt.memo, gotID, gotOK, tt.wantID, tt.wantOK)
			}
		})
	}
}
