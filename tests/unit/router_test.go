package unit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsline/ticketbroker/internal/models"
	"github.com/opsline/ticketbroker/internal/router"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		subject string
		body    string
		want    models.TicketCategory
	}{
		{"billing keyword wins", "Invoice question", "I was charged twice", models.CategoryBilling},
		{"legal keyword wins when alone", "Contract dispute", "", models.CategoryLegal},
		{"billing takes precedence over legal", "Billing contract compliance issue", "", models.CategoryBilling},
		{"technical takes precedence over legal", "contract bug", "", models.CategoryTechnical},
		{"billing takes precedence over technical", "payment error", "", models.CategoryBilling},
		{"matches a technical keyword", "App keeps crashing", "", models.CategoryTechnical},
		{"no keywords defaults to technical", "Hello", "just saying hi", models.CategoryTechnical},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, router.Classify(c.subject, c.body))
		})
	}
}

func TestBaselineScore(t *testing.T) {
	t.Run("empty text scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, router.BaselineScore(""))
	})

	t.Run("urgent keyword scores 0.85", func(t *testing.T) {
		assert.Equal(t, 0.85, router.BaselineScore("this is URGENT, server is down"))
	})

	t.Run("ordinary text scores 0.25", func(t *testing.T) {
		assert.Equal(t, 0.25, router.BaselineScore("just checking in on my order"))
	})
}

func TestStubTransformer(t *testing.T) {
	t.Run("returns baseline-derived score on success", func(t *testing.T) {
		tr := &router.StubTransformer{}
		score, err := tr.Score(context.Background(), "urgent outage")
		assert.NoError(t, err)
		assert.InDelta(t, 0.85, score, 0.01)
	})

	t.Run("returns error when forced to fail", func(t *testing.T) {
		tr := &router.StubTransformer{ShouldFail: func(string) bool { return true }}
		_, err := tr.Score(context.Background(), "anything")
		assert.Error(t, err)
	})
}
