// Package segment buffers an incrementally growing text stream and yields
// word-boundary-safe segments ready for synthesis.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// breakChars are the characters a segment may end on: sentence-terminal
// punctuation plus natural pauses. A split always lands directly after one of
// these, so it can never fall inside a word.
const breakChars = ".!?,;:"

// Config controls when the segmenter emits.
type Config struct {
	// MinLength is the minimum buffered length (bytes) before a break
	// character is allowed to close a segment.
	MinLength int
	// MaxLength is the hard cap: once the buffer reaches it without a break
	// character, the segmenter splits at the last whitespace, or mid-token at
	// the cap when the buffer is a single unbroken token. This bounds memory;
	// the split is never lossy because segment texts always concatenate back
	// to the exact input.
	MaxLength int
}

// Segment is a speakable slice of the generated text. Text preserves the
// original bytes exactly (including whitespace) so that the concatenation of
// all segments reconstructs the full stream.
type Segment struct {
	Text  string
	Final bool
}

// Segmenter accumulates deltas and emits segments at safe split points.
// Not safe for concurrent use; each request owns its own segmenter.
type Segmenter struct {
	cfg     Config
	pending string
}

// New creates a segmenter. Zero config fields get defaults (min 12, max 240).
func New(cfg Config) *Segmenter {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 12
	}
	if cfg.MaxLength <= cfg.MinLength {
		cfg.MaxLength = cfg.MinLength * 20
	}
	return &Segmenter{cfg: cfg}
}

// Push appends a delta and returns any segments that became complete.
// An empty delta produces no segment.
func (s *Segmenter) Push(delta string) []Segment {
	if delta == "" {
		return nil
	}
	s.pending += delta

	var out []Segment
	for {
		text, rest, ok := s.cut(s.pending)
		if !ok {
			break
		}
		out = append(out, Segment{Text: text})
		s.pending = rest
	}
	return out
}

// Flush emits all pending text as one final segment, even if no boundary was
// found, so no trailing content is ever lost. Returns false when nothing is
// pending.
func (s *Segmenter) Flush() (Segment, bool) {
	if s.pending == "" {
		return Segment{Final: true}, false
	}
	seg := Segment{Text: s.pending, Final: true}
	s.pending = ""
	return seg, true
}

// Pending returns the text currently held back waiting for a boundary.
func (s *Segmenter) Pending() string {
	return s.pending
}

// cut finds the next split point in buf. The preferred split is after the
// last break character at or past MinLength; whitespace after the break stays
// with the remainder. When the buffer hits MaxLength without a break it
// splits after the last whitespace inside the cap, falling back to a forced
// split at the cap for a single unbroken token.
func (s *Segmenter) cut(buf string) (text, rest string, ok bool) {
	if idx := strings.LastIndexAny(buf, breakChars); idx >= s.cfg.MinLength-1 {
		return buf[:idx+1], buf[idx+1:], true
	}

	if len(buf) < s.cfg.MaxLength {
		return "", buf, false
	}

	if ws := strings.LastIndexFunc(buf[:s.cfg.MaxLength], unicode.IsSpace); ws > 0 {
		return buf[:ws+1], buf[ws+1:], true
	}

	// Single token longer than the cap: force a split at the cap, backed off
	// to a rune boundary.
	cut := s.cfg.MaxLength
	if cut >= len(buf) {
		return buf, "", true
	}
	for cut > 0 && !utf8.RuneStart(buf[cut]) {
		cut--
	}
	if cut == 0 {
		return "", buf, false
	}
	return buf[:cut], buf[cut:], true
}
