// Package prose tags English text with github.com/jdkato/prose, which
// tokenizes and assigns Penn Treebank tags with an averaged perceptron.
package prose

import (
	"context"
	"fmt"

	"github.com/jdkato/prose/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/reliefweb-corpus/internal/annotate"
)

// sentenceFinal is the tag prose assigns to ". ! ?".
const sentenceFinal = "."

// Tagger satisfies annotate.Tagger. prose has no lemmatizer, so lemmas come
// from a suffix rule set keyed on the Penn tag; inflected words no rule
// recovers get an empty lemma.
type Tagger struct {
	lang language.Tag
}

// New returns an English tagger.
func New() *Tagger {
	return &Tagger{lang: language.English}
}

// Tag tokenizes and tags text in one pass and splits sentences after
// sentence-final punctuation. Trailing words without a final stop form the
// last sentence.
func (t *Tagger) Tag(ctx context.Context, text string) ([]annotate.Sentence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}

	// Casers are stateful.
	fold := cases.Lower(t.lang)
	var (
		out     []annotate.Sentence
		current annotate.Sentence
	)
	for _, tok := range doc.Tokens() {
		current = append(current, annotate.Word{
			Text:  tok.Text,
			Tag:   tok.Tag,
			Lemma: lemma(fold, tok.Text, tok.Tag),
		})
		if tok.Tag == sentenceFinal {
			out = append(out, current)
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out, nil
}

var _ annotate.Tagger = (*Tagger)(nil)
