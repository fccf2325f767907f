package segment

import (
	"strings"
	"testing"
)

func TestPushEmitsAfterBreakCharacter(t *testing.T) {
	s := New(Config{MinLength: 5})

	// Deltas arrive mid-word; nothing may be emitted until a break character
	// lands past the minimum length.
	if segs := s.Push("Hel"); len(segs) != 0 {
		t.Fatalf("Push(Hel) emitted %v, want nothing", segs)
	}
	segs := s.Push("lo there, ")
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d: %v", len(segs), segs)
	}
	if got := strings.TrimSpace(segs[0].Text); got != "Hello there," {
		t.Errorf("segment = %q, want %q", got, "Hello there,")
	}
	if segs[0].Final {
		t.Error("mid-stream segment should not be final")
	}

	if segs := s.Push("how are you"); len(segs) != 0 {
		t.Fatalf("Push(how are you) emitted %v, want nothing (no break char)", segs)
	}

	final, ok := s.Flush()
	if !ok {
		t.Fatal("Flush should emit the pending tail")
	}
	if got := strings.TrimSpace(final.Text); got != "how are you" {
		t.Errorf("final segment = %q, want %q", got, "how are you")
	}
	if !final.Final {
		t.Error("flushed segment should be final")
	}
}

func TestPushHoldsShortSegments(t *testing.T) {
	s := New(Config{MinLength: 12})

	// A break character before MinLength must not close a segment.
	if segs := s.Push("Hi, "); len(segs) != 0 {
		t.Fatalf("short text with comma emitted %v, want nothing", segs)
	}
	if s.Pending() != "Hi, " {
		t.Errorf("Pending() = %q, want %q", s.Pending(), "Hi, ")
	}
}

func TestSegmentsReconstructInput(t *testing.T) {
	// Concatenating every emitted segment must give back the exact input
	// bytes, whatever the delta boundaries were.
	input := "Guten Tag! Ich bin dein Assistent, und ich helfe gerne. Was kann ich heute für dich tun?"

	for _, chunkSize := range []int{1, 3, 7, 100} {
		s := New(Config{MinLength: 12})
		var parts []string
		for i := 0; i < len(input); i += chunkSize {
			end := i + chunkSize
			if end > len(input) {
				end = len(input)
			}
			for _, seg := range s.Push(input[i:end]) {
				parts = append(parts, seg.Text)
			}
		}
		if seg, ok := s.Flush(); ok {
			parts = append(parts, seg.Text)
		}
		if got := strings.Join(parts, ""); got != input {
			t.Errorf("chunkSize %d: reconstruction = %q, want %q", chunkSize, got, input)
		}
	}
}

func TestSplitNeverInsideWord(t *testing.T) {
	s := New(Config{MinLength: 5})
	segs := s.Push("Hello there, how are you? I am fine. And")
	if len(segs) == 0 {
		t.Fatal("expected at least one segment")
	}
	for _, seg := range segs {
		trimmed := strings.TrimRight(seg.Text, " \t\n")
		last := trimmed[len(trimmed)-1]
		if !strings.ContainsRune(breakChars, rune(last)) {
			t.Errorf("segment %q does not end on a break character", seg.Text)
		}
	}
}

func TestHardCapSplitsAtWhitespace(t *testing.T) {
	s := New(Config{MinLength: 5, MaxLength: 20})

	// No break characters at all; once the buffer reaches MaxLength the
	// segmenter must split at the last whitespace.
	segs := s.Push("alpha beta gamma delta epsilon")
	if len(segs) == 0 {
		t.Fatal("expected a hard-cap split")
	}
	for _, seg := range segs {
		if !strings.HasSuffix(seg.Text, " ") {
			t.Errorf("hard-cap segment %q should end at a whitespace boundary", seg.Text)
		}
		words := strings.Fields(seg.Text)
		for _, w := range words {
			if !strings.Contains("alpha beta gamma delta epsilon", w) {
				t.Errorf("segment %q split inside a word (found %q)", seg.Text, w)
			}
		}
	}
}

func TestHardCapForcesSplitOfSingleToken(t *testing.T) {
	s := New(Config{MinLength: 5, MaxLength: 16})

	token := strings.Repeat("x", 40)
	var parts []string
	for _, seg := range s.Push(token) {
		parts = append(parts, seg.Text)
		if len(seg.Text) > 16 {
			t.Errorf("forced segment length %d exceeds cap 16", len(seg.Text))
		}
	}
	if seg, ok := s.Flush(); ok {
		parts = append(parts, seg.Text)
	}
	if got := strings.Join(parts, ""); got != token {
		t.Errorf("reconstruction of unbroken token = %q, want original", got)
	}
}

func TestHardCapRespectsRuneBoundaries(t *testing.T) {
	// Multi-byte runes near the cap must not be split in half.
	s := New(Config{MinLength: 5, MaxLength: 10})
	token := strings.Repeat("ü", 20) // 2 bytes each

	var parts []string
	for _, seg := range s.Push(token) {
		parts = append(parts, seg.Text)
	}
	if seg, ok := s.Flush(); ok {
		parts = append(parts, seg.Text)
	}
	for _, p := range parts {
		if strings.Count(p, "ü")*2 != len(p) {
			t.Errorf("segment %q is not rune-aligned", p)
		}
	}
	if got := strings.Join(parts, ""); got != token {
		t.Errorf("reconstruction = %q, want original", got)
	}
}

func TestFlushEmptyBuffer(t *testing.T) {
	s := New(Config{})
	if _, ok := s.Flush(); ok {
		t.Error("Flush with nothing pending should report false")
	}
}

func TestPushEmptyDelta(t *testing.T) {
	s := New(Config{})
	if segs := s.Push(""); segs != nil {
		t.Errorf("Push(\"\") = %v, want nil", segs)
	}
}

func TestDefaults(t *testing.T) {
	s := New(Config{})
	if s.cfg.MinLength != 12 {
		t.Errorf("default MinLength = %d, want 12", s.cfg.MinLength)
	}
	if s.cfg.MaxLength != 240 {
		t.Errorf("default MaxLength = %d, want 240", s.cfg.MaxLength)
	}

	// MaxLength not above MinLength gets rescaled too.
	s = New(Config{MinLength: 50, MaxLength: 10})
	if s.cfg.MaxLength != 1000 {
		t.Errorf("rescaled MaxLength = %d, want 1000", s.cfg.MaxLength)
	}
}
