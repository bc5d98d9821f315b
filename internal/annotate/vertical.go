package annotate

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Vertical format markers.
const (
	SentenceStart = "<s>\n"
	SentenceEnd   = "</s>\n"
	// NumberLemma replaces the lemma of cardinal numbers written with digits.
	NumberLemma = "[number]"
)

const numberTag = "CD"

// Formatter renders tagged sentences as vertical lines.
type Formatter struct {
	tagset Tagset
	logger *zap.Logger
}

// NewFormatter binds a tagset. A nil logger discards gap warnings.
func NewFormatter(tagset Tagset, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{tagset: tagset, logger: logger}
}

// Format renders every non-empty sentence of recordID and returns the lines
// together with the number of word lines. Sentences without words produce
// no markers, so a document with no words yields no lines at all.
func (f *Formatter) Format(recordID string, sentences []Sentence) ([]string, int) {
	var lines []string
	tokens := 0
	for _, s := range sentences {
		var words []string
		for _, w := range s {
			if line, ok := f.Line(recordID, w); ok {
				words = append(words, line)
			}
		}
		if len(words) == 0 {
			continue
		}
		lines = append(lines, SentenceStart)
		lines = append(lines, words...)
		lines = append(lines, SentenceEnd)
		tokens += len(words)
	}
	return lines, tokens
}

// Line renders one word as "surface\ttag\tlemma+lpos\n". Words whose surface
// is blank are dropped.
func (f *Formatter) Line(recordID string, w Word) (string, bool) {
	surface := clean(w.Text)
	if surface == "" {
		return "", false
	}
	tag := clean(w.Tag)
	lemma := clean(w.Lemma)
	if lemma == "" {
		f.logger.Warn("annotation gap: no lemma",
			zap.String("record_id", recordID),
			zap.String("word", surface),
		)
		lemma = surface
	}
	if tag == numberTag && hasDigit(lemma) {
		lemma = NumberLemma
	}
	suffix, ok := f.tagset.Suffix(tag)
	if !ok {
		f.logger.Warn("unknown tag",
			zap.String("record_id", recordID),
			zap.String("word", surface),
			zap.String("tag", tag),
		)
	}
	return surface + "\t" + tag + "\t" + lemma + suffix + "\n", true
}

// clean strips the characters that would break the column layout.
func clean(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s))
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
