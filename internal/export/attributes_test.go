package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

func TestAttributesFromJSONText(t *testing.T) {
	t.Parallel()

	rec := storage.RawRecord{ID: "9", Fields: storage.Fields{
		{Name: "title", Value: "Cyclone"},
		{Name: "country", Value: `[{"name":"Mozambique","iso3":"moz"},{"name":"Malawi"}]`},
		{Name: "date", Value: `{"created":"2024-01-02T00:00:00+00:00"}`},
		{Name: "language", Value: nil},
		{Name: "score", Value: 3.5},
	}}
	got := Attributes(rec, []string{"title", "country.name", "country.iso3", "date.created", "language.code", "score", "missing"})
	assert.Equal(t, map[string]string{
		"title":        "Cyclone",
		"country_name": "Mozambique|Malawi",
		"country_iso3": "moz",
		"date_created": "2024-01-02T00:00:00+00:00",
		"score":        "3.5",
	}, got)
}

func TestAttributesHyphenatedField(t *testing.T) {
	t.Parallel()

	rec := storage.RawRecord{Fields: storage.Fields{{Name: "body_html", Value: "<p>x</p>"}}}
	assert.Equal(t, map[string]string{"body_html": "<p>x</p>"}, Attributes(rec, []string{"body-html"}))
}

func TestWriteDoc(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	err := WriteDoc(&b, `a"b`, map[string]string{"z": "last", "a": "line\nbreak", "empty": " ", "id": "ignored"},
		[]string{"<s>\n", "Hi\tUH\thi-x\n", "</s>\n"})
	require.NoError(t, err)
	assert.Equal(t, "<doc id=\"a&quot;b\" a=\"line break\" z=\"last\">\n<s>\nHi\tUH\thi-x\n</s>\n</doc>\n", b.String())
}

func TestTagOf(t *testing.T) {
	t.Parallel()

	tag, ok := TagOf("Cats\tNNS\tcat-n\n")
	require.True(t, ok)
	assert.Equal(t, "NNS", tag)

	for _, line := range []string{"<s>\n", "</s>\n", "broken line\n", ""} {
		_, ok := TagOf(line)
		assert.False(t, ok, line)
	}
}
