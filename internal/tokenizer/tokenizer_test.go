package tokenizer

import "testing"

func TestNew_PicksEncodingByPrefix(t *testing.T) {
	tests := []struct {
		model        string
		wantEncoding string
	}{
		{"gpt-4o-2024-08-06", "o200k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"gpt-4-turbo-preview", "cl100k_base"},
		{"claude-3-5-sonnet", defaultEncoding},
		{"llama-3.3-70b", defaultEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tok := New(tt.model)
			if tok.encoding != tt.wantEncoding {
				t.Errorf("got encoding %q, want %q", tok.encoding, tt.wantEncoding)
			}
		})
	}
}

func TestCount_EmptyText(t *testing.T) {
	tok := New("gpt-4o")
	if n := tok.Count(""); n != 0 {
		t.Errorf("Count(\"\") = %d, want 0", n)
	}
}

func TestCount_NonEmptyTextIsPositive(t *testing.T) {
	tok := New("gpt-4o")
	n := tok.Count("the quick brown fox jumps over the lazy dog")
	if n <= 0 {
		t.Errorf("Count() = %d, want > 0", n)
	}
}

func TestEstimateByLength(t *testing.T) {
	if n := estimateByLength(""); n != 0 {
		t.Errorf("estimateByLength(\"\") = %d, want 0", n)
	}
	if n := estimateByLength("ab"); n != 1 {
		t.Errorf("estimateByLength(\"ab\") = %d, want 1 (rounds up from zero for non-empty text)", n)
	}
	if n := estimateByLength("123456789012"); n != 3 {
		t.Errorf("estimateByLength(12 chars) = %d, want 3", n)
	}
}
