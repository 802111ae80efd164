package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsline/ticketbroker/internal/embedding"
)

func TestEmbedDeterminism(t *testing.T) {
	t.Run("same input always produces the same vector", func(t *testing.T) {
		v1 := embedding.Embed("Server down", "production API is returning 500s")
		v2 := embedding.Embed("Server down", "production API is returning 500s")
		assert.Equal(t, v1, v2)
	})

	t.Run("different input produces a different vector", func(t *testing.T) {
		v1 := embedding.Embed("Server down", "production API is returning 500s")
		v2 := embedding.Embed("Invoice question", "I was charged twice")
		assert.NotEqual(t, v1, v2)
	})

	t.Run("empty subject and body yields the zero vector", func(t *testing.T) {
		assert.Equal(t, embedding.Vector{}, embedding.Embed("", ""))
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors are maximally similar", func(t *testing.T) {
		v := embedding.Embed("outage", "prod is down")
		assert.InDelta(t, 1.0, embedding.CosineSimilarity(v, v), 0.000001)
	})

	t.Run("near-duplicate tickets score highly similar", func(t *testing.T) {
		v1 := embedding.Embed("Server down", "production API returning 500 errors")
		v2 := embedding.Embed("Server down", "production API returning 500 errors")
		sim := embedding.CosineSimilarity(v1, v2)
		assert.GreaterOrEqual(t, sim, 0.99)
	})

	t.Run("similarity is clamped to [-1, 1]", func(t *testing.T) {
		v1 := embedding.Embed("a", "b")
		v2 := embedding.Embed("c", "d")
		sim := embedding.CosineSimilarity(v1, v2)
		assert.True(t, sim >= -1.0 && sim <= 1.0)
	})
}
