package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewRunIDIsV7AndUnique(t *testing.T) {
	t.Parallel()
	gen := NewGenerator()
	a, err := gen.NewRunID()
	require.NoError(t, err)
	b, err := gen.NewRunID()
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), a.Version())
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, a.String()[:8], b.String()[:8])
}
