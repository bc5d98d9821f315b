package annotate

import "context"

// Word is one tagged token. An empty Lemma means the tagger could not
// lemmatize the token.
type Word struct {
	Text  string
	Tag   string
	Lemma string
}

// Sentence is an ordered run of tagged words.
type Sentence []Word

// Tagger segments text into sentences and tags every token.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Sentence, error)
}

// TaggerFunc adapts a function to the Tagger interface.
type TaggerFunc func(ctx context.Context, text string) ([]Sentence, error)

// Tag calls f.
func (f TaggerFunc) Tag(ctx context.Context, text string) ([]Sentence, error) {
	return f(ctx, text)
}
