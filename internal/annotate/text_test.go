package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>p{color:red}</style></head><body>
<nav>Home | About</nav>
<h1>Flood update</h1>
<p>Rivers rose   overnight.</p>
<script>var x = 1;</script>
<ul><li>Chad</li><li>Niger</li></ul>
</body></html>`

	got, err := ExtractText(html)
	require.NoError(t, err)
	assert.Equal(t, "Flood update\nRivers rose overnight.\nChad\nNiger", got)
}

func TestExtractTextFragment(t *testing.T) {
	t.Parallel()

	got, err := ExtractText("<p>One</p><p>Two</p>")
	require.NoError(t, err)
	assert.Equal(t, "One\nTwo", got)
}

func TestExtractTextImageOnly(t *testing.T) {
	t.Parallel()

	got, err := ExtractText(`<p><img src="map.png"></p>`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b\nc", NormalizeText("  a \t b \r\n\n\n c  "))
	assert.Empty(t, NormalizeText(" \n\t\n"))
}
