package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatterLine(t *testing.T) {
	t.Parallel()

	f := NewFormatter(DefaultTagset(), nil)
	tests := []struct {
		name string
		word Word
		want string
	}{
		{name: "plural noun", word: Word{Text: "Cats", Tag: "NNS", Lemma: "cat"}, want: "Cats\tNNS\tcat-n\n"},
		{name: "digit number", word: Word{Text: "2,500", Tag: "CD", Lemma: "2,500"}, want: "2,500\tCD\t[number]-m\n"},
		{name: "spelled number", word: Word{Text: "three", Tag: "CD", Lemma: "three"}, want: "three\tCD\tthree-m\n"},
		{name: "tab in surface", word: Word{Text: "a\tb", Tag: "NN", Lemma: "ab"}, want: "a b\tNN\tab-n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := f.Line("1", tt.word)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatterLemmaGapFallsBackToSurface(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	f := NewFormatter(DefaultTagset(), zap.New(core))

	got, ok := f.Line("42", Word{Text: "Floods", Tag: "NNS"})
	require.True(t, ok)
	assert.Equal(t, "Floods\tNNS\tFloods-n\n", got)

	entries := logs.FilterMessage("annotation gap: no lemma").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["record_id"])
	assert.Equal(t, "Floods", fields["word"])
}

func TestFormatterUnknownTagHasNoSuffix(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	f := NewFormatter(DefaultTagset(), zap.New(core))

	got, ok := f.Line("7", Word{Text: "xyz", Tag: "ZZ", Lemma: "xyz"})
	require.True(t, ok)
	assert.Equal(t, "xyz\tZZ\txyz\n", got)
	assert.Equal(t, 1, logs.FilterMessage("unknown tag").Len())
}

func TestFormatterFormat(t *testing.T) {
	t.Parallel()

	f := NewFormatter(DefaultTagset(), nil)
	lines, tokens := f.Format("1", []Sentence{
		{{Text: "Cats", Tag: "NNS", Lemma: "cat"}, {Text: "sleep", Tag: "VBP", Lemma: "sleep"}, {Text: ".", Tag: ".", Lemma: "."}},
		{},
		{{Text: "  ", Tag: "NN", Lemma: ""}},
	})
	assert.Equal(t, []string{
		"<s>\n",
		"Cats\tNNS\tcat-n\n",
		"sleep\tVBP\tsleep-v\n",
		".\t.\t.-x\n",
		"</s>\n",
	}, lines)
	assert.Equal(t, 3, tokens)
}

func TestFormatterNoWordsNoLines(t *testing.T) {
	t.Parallel()

	lines, tokens := NewFormatter(DefaultTagset(), nil).Format("1", nil)
	assert.Empty(t, lines)
	assert.Zero(t, tokens)
}
