// Package embedding provides a deterministic, black-box text embedding and
// the cosine similarity used by both the dedup engine and the routing
// optimizer's skill-vector matching. The embedding model is intentionally a
// stub: the spec treats it as an opaque scorer, so a hash-based deterministic
// vector stands in for a real transformer embedding without pulling in an ML
// runtime the rest of the corpus doesn't carry.
package embedding

import (
	"hash/fnv"
	"math"

	decimalpkg "github.com/opsline/ticketbroker/pkg/decimal"
)

// Dims is the embedding vector width.
const Dims = 32

// Vector is a fixed-width float embedding.
type Vector [Dims]float64

// Embed deterministically hashes subject+body into a unit-normalized vector.
// Same input always yields the same vector, which is what the dedup window
// needs for reproducible similarity checks.
func Embed(subject, body string) Vector {
	var v Vector
	if subject == "" && body == "" {
		return v
	}
	text := subject + "\x00" + body

	for i := 0; i < Dims; i++ {
		h := fnv.New64a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		// Map the hash into [-1, 1].
		v[i] = (float64(sum%2000001) / 1000000.0) - 1.0
	}

	return normalize(v)
}

func normalize(v Vector) Vector {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	var out Vector
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// CosineSimilarity computes cosine similarity between two vectors, clamped
// to [-1, 1] and rounded to 6 decimal places.
func CosineSimilarity(a, b Vector) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return decimalpkg.ClampRound(dot, -1.0, 1.0, 6)
}
