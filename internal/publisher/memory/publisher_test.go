package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "corpus-exports", map[string]any{"uri": "file:///tmp/c.vert", "documents": 2})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "corpus-exports", msgs[0].Topic)
	assert.JSONEq(t, `{"uri":"file:///tmp/c.vert","documents":2}`, string(msgs[0].Data))
}

func TestPublishRejects(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = p.Publish(context.Background(), "t", func() {})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Publish(ctx, "t", "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Messages())
}
