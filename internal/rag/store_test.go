package rag

import "testing"

func TestVectorLiteral(t *testing.T) {
	tests := []struct {
		in   []float32
		want string
	}{
		{nil, "[]"},
		{[]float32{0.5}, "[0.5]"},
		{[]float32{0.1, -0.2, 1}, "[0.1,-0.2,1]"},
	}
	for _, tt := range tests {
		if got := vectorLiteral(tt.in); got != tt.want {
			t.Errorf("vectorLiteral(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(nil, nil, Config{})
	if s.minSimilarity != 0.5 {
		t.Errorf("minSimilarity = %v, want 0.5", s.minSimilarity)
	}
	if s.topK != 10 {
		t.Errorf("topK = %d, want 10", s.topK)
	}

	s = New(nil, nil, Config{MinSimilarity: 0.8, TopK: 3})
	if s.minSimilarity != 0.8 || s.topK != 3 {
		t.Errorf("config not applied: %v %d", s.minSimilarity, s.topK)
	}
}
